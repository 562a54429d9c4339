package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	LogConfig          LogConfig          `json:"log_config"`
	DBConfig           DBConfig           `json:"db_config"`
	QueueConfig        QueueConfig        `json:"queue_config"`
	ChainConfig        ChainConfig        `json:"chain_config"`
	DAConfig           DAConfig           `json:"da_config"`
	OrchestratorConfig OrchestratorConfig `json:"orchestrator_config"`
	MetricsConfig      MetricsConfig      `json:"metrics_config"`
	AlertConfig        AlertConfig        `json:"alert_config"`
}

type OrchestratorConfig struct {
	StartBlock              uint64 `json:"start_block"`                // StartBlock is the first L2 block number to orchestrate if the DB is empty
	SubmissionMaxAttempts   uint64 `json:"submission_max_attempts"`    // bounded attempt budget for the submission phase
	VerificationMaxAttempts uint64 `json:"verification_max_attempts"`  // bounded poll budget per submission cycle
	VerifyDelaySec          uint64 `json:"verify_delay_sec"`           // delay before each verification poll
	RequeueDelaySec         uint64 `json:"requeue_delay_sec"`          // delay before retrying a transient upstream failure
	ReseedAfterSec          uint64 `json:"reseed_after_sec"`           // age after which a CREATED record with no visible progress is re-enqueued
	LockStaleSec            uint64 `json:"lock_stale_sec"`             // age after which a worker lock is reclaimable
	IngestIntervalSec       uint64 `json:"ingest_interval_sec"`        // how often the ingestor scans for new blocks
	Workers                 int    `json:"workers"`                    // number of concurrent queue consumers
}

func (cfg *OrchestratorConfig) Validate() {
	if cfg.SubmissionMaxAttempts == 0 {
		cfg.SubmissionMaxAttempts = DefaultSubmissionMaxAttempts
	}
	if cfg.VerificationMaxAttempts == 0 {
		cfg.VerificationMaxAttempts = DefaultVerificationMaxAttempts
	}
	if cfg.VerifyDelaySec == 0 {
		cfg.VerifyDelaySec = DefaultVerifyDelaySec
	}
	if cfg.RequeueDelaySec == 0 {
		cfg.RequeueDelaySec = DefaultRequeueDelaySec
	}
	if cfg.ReseedAfterSec == 0 {
		cfg.ReseedAfterSec = DefaultReseedAfterSec
	}
	if cfg.LockStaleSec == 0 {
		cfg.LockStaleSec = DefaultLockStaleSec
	}
	if cfg.IngestIntervalSec == 0 {
		cfg.IngestIntervalSec = DefaultIngestIntervalSec
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
}

type ChainConfig struct {
	RPCAddr       string `json:"rpc_addr"` // RPCAddr is the upstream L2 node JSON-RPC address
	RPCTimeoutSec uint64 `json:"rpc_timeout_sec"`
}

func (cfg *ChainConfig) Validate() {
	if cfg.RPCAddr == "" {
		panic("chain rpc address should not be empty")
	}
	if cfg.RPCTimeoutSec == 0 {
		cfg.RPCTimeoutSec = DefaultChainRPCTimeoutSec
	}
}

type DAConfig struct {
	Provider   string           `json:"provider"` // celestia or greenfield
	Celestia   CelestiaConfig   `json:"celestia"`
	Greenfield GreenfieldConfig `json:"greenfield"`
}

type CelestiaConfig struct {
	RPCAddr       string `json:"rpc_addr"`
	AuthToken     string `json:"auth_token"`
	Namespace     string `json:"namespace"` // hex encoded namespace the blobs are submitted under
	Confirmations uint64 `json:"confirmations"`
}

type GreenfieldConfig struct {
	BundleServiceEndpoint string `json:"bundle_service_endpoint"`
	BucketName            string `json:"bucket_name"`
	PrivateKey            string `json:"private_key"`
}

func (cfg *DAConfig) Validate() {
	switch cfg.Provider {
	case DAProviderCelestia:
		if cfg.Celestia.RPCAddr == "" {
			panic("celestia rpc address should not be empty")
		}
	case DAProviderGreenfield:
		if cfg.Greenfield.BundleServiceEndpoint == "" || cfg.Greenfield.BucketName == "" {
			panic("greenfield bundle service endpoint and bucket name should not be empty")
		}
	default:
		panic(fmt.Sprintf("only %s and %s DA providers supported", DAProviderCelestia, DAProviderGreenfield))
	}
}

type QueueConfig struct {
	Dialect         string `json:"dialect"` // sqs or memory
	AWSRegion       string `json:"aws_region"`
	AWSEndpoint     string `json:"aws_endpoint"` // optional, for localstack style deployments
	ProcessQueueURL string `json:"process_queue_url"`
	VerifyQueueURL  string `json:"verify_queue_url"`
}

func (cfg *QueueConfig) Validate() {
	if cfg.Dialect != QueueDialectSQS && cfg.Dialect != QueueDialectMemory {
		panic(fmt.Sprintf("only %s and %s queue dialects supported", QueueDialectSQS, QueueDialectMemory))
	}
	if cfg.Dialect == QueueDialectSQS && (cfg.AWSRegion == "" || cfg.ProcessQueueURL == "" || cfg.VerifyQueueURL == "") {
		panic("sqs queue config is not correct, missing region and/or queue urls")
	}
}

type MetricsConfig struct {
	Enable   bool   `json:"enable"`
	HTTPAddr string `json:"http_addr"`
}

type AlertConfig struct {
	WebhookURL string `json:"webhook_url"` // optional, alerts are always logged
}

type DBConfig struct {
	Dialect      string `json:"dialect"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Url          string `json:"url"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxOpenConns int    `json:"max_open_conns"`
}

func (cfg *DBConfig) Validate() {
	if cfg.Dialect != DBDialectMysql && cfg.Dialect != DBDialectSqlite3 {
		panic(fmt.Sprintf("only %s and %s supported", DBDialectMysql, DBDialectSqlite3))
	}
	if cfg.Dialect == DBDialectMysql && (cfg.Username == "" || cfg.Url == "") {
		panic("db config is not correct, missing username and/or url")
	}
	if cfg.MaxIdleConns == 0 || cfg.MaxOpenConns == 0 {
		panic("db connections is not correct")
	}
}

type LogConfig struct {
	Level                        string `json:"level"`
	Filename                     string `json:"filename"`
	MaxFileSizeInMB              int    `json:"max_file_size_in_mb"`
	MaxBackupsOfLogFiles         int    `json:"max_backups_of_log_files"`
	MaxAgeToRetainLogFilesInDays int    `json:"max_age_to_retain_log_files_in_days"`
	UseConsoleLogger             bool   `json:"use_console_logger"`
	UseFileLogger                bool   `json:"use_file_logger"`
	Compress                     bool   `json:"compress"`
}

func (cfg *LogConfig) Validate() {
	if cfg.UseFileLogger {
		if cfg.Filename == "" {
			panic("filename should not be empty if use file logger")
		}
		if cfg.MaxFileSizeInMB <= 0 {
			panic("max_file_size_in_mb should be larger than 0 if use file logger")
		}
		if cfg.MaxBackupsOfLogFiles <= 0 {
			panic("max_backups_off_log_files should be larger than 0 if use file logger")
		}
	}
}

func (c *Config) Validate() {
	c.LogConfig.Validate()
	c.DBConfig.Validate()
	c.QueueConfig.Validate()
	c.ChainConfig.Validate()
	c.DAConfig.Validate()
	c.OrchestratorConfig.Validate()
}

func ParseConfigFromJson(content string) *Config {
	var config Config
	if err := json.Unmarshal([]byte(content), &config); err != nil {
		panic(err)
	}
	config.Validate()
	return &config
}

func ParseConfigFromFile(filePath string) *Config {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		panic(err)
	}

	var config Config
	if err := json.Unmarshal(bz, &config); err != nil {
		panic(err)
	}
	config.Validate()
	return &config
}
