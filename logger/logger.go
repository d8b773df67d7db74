package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New собирает zap-логгер. Для debug используется development-конфиг
// с человекочитаемым выводом, иначе JSON.
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var conf zap.Config
	if lvl == zapcore.DebugLevel {
		conf = zap.NewDevelopmentConfig()
	} else {
		conf = zap.NewProductionConfig()
		conf.EncoderConfig.TimeKey = "ts"
		conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	conf.Level = zap.NewAtomicLevelAt(lvl)
	return conf.Build()
}

// UserID поле с идентификатором пользователя
func UserID(id int64) zap.Field {
	return zap.Int64("user_id", id)
}

// ConversationID поле с идентификатором диалога
func ConversationID(id int64) zap.Field {
	return zap.Int64("conversation_id", id)
}
