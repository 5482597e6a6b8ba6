package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger from the logging section of the config
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	if err := ApplyLevel(logger, cfg.Level); err != nil {
		return nil, err
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	return logger, nil
}

func output(cfg *config.LoggingConfig) (io.Writer, error) {
	if cfg.Output != "file" && cfg.Output != "both" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
		return nil, err
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSize, // megabytes
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAge, // days
		Compress:   true,
	}
	if cfg.Output == "both" {
		return io.MultiWriter(os.Stdout, rotating), nil
	}
	return rotating, nil
}

// ApplyLevel switches the logger level; used at startup and on config reload.
func ApplyLevel(logger *logrus.Logger, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// WithChat adds the chat and sender fields used on every handler log line
func WithChat(logger logrus.FieldLogger, chatID int64, userID int64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})
}
