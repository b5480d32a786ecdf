package logger

import (
	"os"

	"go.uber.org/zap"
)

var logger *zap.SugaredLogger

type Logger struct {
	*zap.SugaredLogger
}

func GetLogger() Logger {
	if logger == nil {
		var zaplog *zap.Logger
		if os.Getenv("MAILGRAM_ENV") == "production" {
			zaplog, _ = zap.NewProduction()
		} else {
			zaplog, _ = zap.NewDevelopment()
		}
		logger = zaplog.Sugar()
	}

	return Logger{SugaredLogger: logger}
}
