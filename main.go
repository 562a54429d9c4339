package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bnb-chain/da-orchestrator/config"
	orchdb "github.com/bnb-chain/da-orchestrator/db"
	"github.com/bnb-chain/da-orchestrator/external"
	"github.com/bnb-chain/da-orchestrator/external/da"
	"github.com/bnb-chain/da-orchestrator/logging"
	"github.com/bnb-chain/da-orchestrator/metrics"
	"github.com/bnb-chain/da-orchestrator/orchestrator"
	"github.com/bnb-chain/da-orchestrator/queue"
)

func initFlags() {
	flag.String(config.FlagConfigPath, "", "config file path")
	flag.String(config.FlagConfigType, "", "config type, local or aws")
	flag.String(config.FlagConfigAwsRegion, "", "aws region")
	flag.String(config.FlagConfigAwsSecretKey, "", "aws secret key")
	flag.String(config.FlagConfigDbPass, "", "da-orchestrator db password")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		panic(err)
	}
}

func printUsage() {
	fmt.Print("usage: ./da-orchestrator --config-type local --config-path configFile\n")
	fmt.Print("usage: ./da-orchestrator --config-type aws --aws-region awsRegion --aws-secret-key awsSecretKey\n")
}

func main() {
	var (
		cfg                        *config.Config
		configType, configFilePath string
	)
	initFlags()
	configType = viper.GetString(config.FlagConfigType)
	if configType == "" {
		configType = os.Getenv(config.ConfigType)
	}
	if configType != config.AWSConfig && configType != config.LocalConfig {
		printUsage()
		return
	}
	if configType == config.AWSConfig {
		awsSecretKey := viper.GetString(config.FlagConfigAwsSecretKey)
		if awsSecretKey == "" {
			printUsage()
			return
		}
		awsRegion := viper.GetString(config.FlagConfigAwsRegion)
		if awsRegion == "" {
			printUsage()
			return
		}
		configContent, err := config.GetSecret(awsSecretKey, awsRegion)
		if err != nil {
			fmt.Printf("get aws config error, err=%s", err.Error())
			return
		}
		cfg = config.ParseConfigFromJson(configContent)
	} else {
		configFilePath = viper.GetString(config.FlagConfigPath)
		if configFilePath == "" {
			configFilePath = os.Getenv(config.ConfigFilePath)
			if configFilePath == "" {
				printUsage()
				return
			}
		}
		cfg = config.ParseConfigFromFile(configFilePath)
	}
	if cfg == nil {
		panic("failed to get configuration")
	}
	logging.InitLogger(&cfg.LogConfig)

	username := cfg.DBConfig.Username
	password := viper.GetString(config.FlagConfigDbPass)
	if password == "" {
		password = os.Getenv(config.ConfigDBPass)
		if password == "" {
			password = cfg.DBConfig.Password
		}
	}
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	var dialector gorm.Dialector
	if cfg.DBConfig.Dialect == config.DBDialectMysql {
		url := cfg.DBConfig.Url
		dbPath := fmt.Sprintf("%s:%s@%s", username, password, url)
		dialector = mysql.Open(dbPath)
	} else if cfg.DBConfig.Dialect == config.DBDialectSqlite3 {
		dialector = sqlite.Open(cfg.DBConfig.Url)
	} else {
		panic(fmt.Sprintf("unexpected DB dialect %s", cfg.DBConfig.Dialect))
	}
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		panic(fmt.Sprintf("open db error, err=%s", err.Error()))
	}
	dbConfig, err := gormDB.DB()
	if err != nil {
		panic(err)
	}
	dbConfig.SetMaxIdleConns(cfg.DBConfig.MaxIdleConns)
	dbConfig.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)

	orchdb.InitTables(gormDB)
	blockDao := orchdb.NewBlockSvcDB(gormDB)

	taskQueue, err := queue.New(&cfg.QueueConfig)
	if err != nil {
		panic(fmt.Sprintf("create task queue error, err=%s", err.Error()))
	}
	chainClient, err := external.NewChainClient(cfg.ChainConfig.RPCAddr, time.Duration(cfg.ChainConfig.RPCTimeoutSec)*time.Second)
	if err != nil {
		panic(fmt.Sprintf("create chain client error, err=%s", err.Error()))
	}
	daClient, err := da.NewClient(&cfg.DAConfig)
	if err != nil {
		panic(fmt.Sprintf("create DA client error, err=%s", err.Error()))
	}

	if cfg.MetricsConfig.Enable {
		m := metrics.NewMetrics(cfg.MetricsConfig.HTTPAddr)
		m.Start()
	}

	alerter := orchestrator.NewAlerter(&cfg.AlertConfig)
	orch := orchestrator.NewOrchestrator(blockDao, taskQueue, chainClient, daClient, alerter, &cfg.OrchestratorConfig)
	orch.StartLoop()
	select {}
}
