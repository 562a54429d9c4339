package config

const (
	FlagConfigPath         = "config-path"
	FlagConfigType         = "config-type"
	FlagConfigAwsRegion    = "aws-region"
	FlagConfigAwsSecretKey = "aws-secret-key"
	FlagConfigDbPass       = "db-pass"

	AWSConfig   = "aws"
	LocalConfig = "local"

	ConfigType     = "CONFIG_TYPE"
	ConfigFilePath = "CONFIG_FILE_PATH"
	ConfigDBPass   = "CONFIG_DB_PASS"

	DBDialectMysql   = "mysql"
	DBDialectSqlite3 = "sqlite3"

	QueueDialectSQS    = "sqs"
	QueueDialectMemory = "memory"

	DAProviderCelestia   = "celestia"
	DAProviderGreenfield = "greenfield"

	DefaultSubmissionMaxAttempts   = 3
	DefaultVerificationMaxAttempts = 30
	DefaultVerifyDelaySec          = 5
	DefaultRequeueDelaySec         = 10
	DefaultReseedAfterSec          = 600
	DefaultLockStaleSec            = 300
	DefaultIngestIntervalSec       = 10
	DefaultWorkers                 = 4
	DefaultChainRPCTimeoutSec      = 20
)
