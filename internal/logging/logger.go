// Package logging builds the zap loggers used across the service.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05"

// NewLogger builds a sugared logger writing to stdout.
func NewLogger(level string, color, isProd, isJSON bool) (*zap.SugaredLogger, error) {
	log, err := newLogger(level, color, isProd, isJSON, os.Stdout)
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

// NewWriterLogger is NewLogger writing to w instead of stdout.
func NewWriterLogger(level string, color, isProd, isJSON bool, w io.Writer) (*zap.SugaredLogger, error) {
	log, err := newLogger(level, color, isProd, isJSON, w)
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

func newLogger(levelStr string, color, isProd, isJSON bool, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	encoderCfg := newEncoderCfg(isProd, color, isJSON)

	var encoder zapcore.Encoder
	if isJSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)

	opts := []zap.Option{
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if !isProd {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func newEncoderCfg(isProd, color, isJSON bool) zapcore.EncoderConfig {
	var encoderCfg zapcore.EncoderConfig
	if isProd {
		encoderCfg = zap.NewProductionEncoderConfig()
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}

	if color && !isJSON {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return encoderCfg
}
