package logging

import (
	"io"
	"os"

	"github.com/op/go-logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bnb-chain/da-orchestrator/config"
)

// Logger is the package wide logger, usable after InitLogger has run.
var Logger = logging.MustGetLogger("da-orchestrator")

var format = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} %{shortfile} [%{level:.4s}] %{message}`,
)

func InitLogger(cfg *config.LogConfig) {
	backends := make([]logging.Backend, 0, 2)
	if cfg.UseConsoleLogger {
		consoleBackend := logging.NewLogBackend(os.Stdout, "", 0)
		backends = append(backends, logging.NewBackendFormatter(consoleBackend, format))
	}
	if cfg.UseFileLogger {
		var fileWriter io.Writer = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxFileSizeInMB,
			MaxBackups: cfg.MaxBackupsOfLogFiles,
			MaxAge:     cfg.MaxAgeToRetainLogFilesInDays,
			Compress:   cfg.Compress,
		}
		fileBackend := logging.NewLogBackend(fileWriter, "", 0)
		backends = append(backends, logging.NewBackendFormatter(fileBackend, format))
	}

	level, err := logging.LogLevel(cfg.Level)
	if err != nil {
		level = logging.INFO
	}
	leveled := logging.SetBackend(backends...)
	leveled.SetLevel(level, "")
	Logger.SetBackend(leveled)
}
