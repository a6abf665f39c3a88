package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log *zap.Logger = zap.NewNop()

// FileOptions configures the optional rotating file sink.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func InitLogger(mode string, file FileOptions) {
	var encCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)

	if mode == "release" {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
		level.SetLevel(zapcore.InfoLevel)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}
	if file.Path != "" {
		// colour codes do not belong in files
		fileEnc := encCfg
		fileEnc.EncodeLevel = zapcore.CapitalLevelEncoder
		rotator := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotator), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if mode != "release" {
		opts = append(opts, zap.Development())
	}
	Log = zap.New(zapcore.NewTee(cores...), opts...)
	zap.ReplaceGlobals(Log)
}
