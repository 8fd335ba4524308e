// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// VerboLevel sits below zap's Debug
const VerboLevel = zapcore.Level(-2)

// WrappedCore ties a zap core to its configured level so the factory can
// report what it built.
type WrappedCore struct {
	Core  zapcore.Core
	Level zapcore.Level
}

// Config defines the log outputs of one subsystem logger
type Config struct {
	// Directory log files are written into; disabled when empty
	Directory string
	// LogLevel applies to the rotating file output
	LogLevel zapcore.Level
	// DisplayLevel applies to stderr
	DisplayLevel zapcore.Level
	// MaxSizeMB, MaxFiles and MaxAgeDays bound the rotating file output
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int
}

// Factory creates new subsystem loggers that share one config
type Factory interface {
	Make(name string) Logger
	Close()
}

type factory struct {
	config  Config
	loggers []Logger
}

func NewFactory(config Config) Factory {
	return &factory{config: config}
}

func (f *factory) Make(name string) Logger {
	consoleEncoder := zapcore.NewConsoleEncoder(newTermEncoderConfig())
	cores := []WrappedCore{{
		Core: zapcore.NewCore(
			consoleEncoder,
			zapcore.Lock(os.Stderr),
			zapcore.Level(f.config.DisplayLevel),
		),
		Level: f.config.DisplayLevel,
	}}

	if f.config.Directory != "" {
		rotator := &lumberjack.Logger{
			Filename: filepath.Join(f.config.Directory, name+".log"),
			MaxSize:  f.config.MaxSizeMB,
			MaxAge:   f.config.MaxAgeDays,
			Compress: false,
		}
		if f.config.MaxFiles > 0 {
			rotator.MaxBackups = f.config.MaxFiles
		}
		fileEncoder := zapcore.NewJSONEncoder(newFileEncoderConfig())
		cores = append(cores, WrappedCore{
			Core: zapcore.NewCore(
				fileEncoder,
				zapcore.AddSync(rotator),
				zapcore.Level(f.config.LogLevel),
			),
			Level: f.config.LogLevel,
		})
	}

	l := NewLogger(name, cores...)
	f.loggers = append(f.loggers, l)
	return l
}

func (f *factory) Close() {
	for _, l := range f.loggers {
		l.Stop()
	}
	f.loggers = nil
}

func newTermEncoderConfig() zapcore.EncoderConfig {
	config := newFileEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config
}

func newFileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.EpochTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
}
