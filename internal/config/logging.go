package config

import (
	"io" // Output writers
	"os" // Stdout

	"github.com/sirupsen/logrus"       // Structured logging
	"gopkg.in/natefinch/lumberjack.v2" // Log rotation
)

// SetupLogging configures the global logrus logger from cfg
func SetupLogging(cfg *Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel // Unknown levels fall back to info
	}
	logrus.SetLevel(level)
	logrus.SetOutput(logOutput(cfg))
}

func logOutput(cfg *Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stdout
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated)
}
