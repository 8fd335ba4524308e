// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Logger = (*log)(nil)

// Logger defines the interface that is used to keep a record of all events
// that happen to the program
type Logger interface {
	// Fatal that the program should exit
	Fatal(msg string, fields ...zap.Field)
	// Error that the program is running in an unexpected state
	Error(msg string, fields ...zap.Field)
	// Warn that the program may be running in an unexpected state
	Warn(msg string, fields ...zap.Field)
	// Info about the program's state
	Info(msg string, fields ...zap.Field)
	// Debug messages useful when tracking down consensus issues
	Debug(msg string, fields ...zap.Field)
	// Verbo messages only useful for the most verbose traces
	Verbo(msg string, fields ...zap.Field)

	// With returns a logger that attaches [fields] to every message
	With(fields ...zap.Field) Logger

	// Stop flushes any buffered entries
	Stop()
}

type log struct {
	internalLogger *zap.Logger
}

// NewLogger returns a Logger that writes to the given cores
func NewLogger(prefix string, wrappedCores ...WrappedCore) Logger {
	cores := make([]zapcore.Core, len(wrappedCores))
	for i, wc := range wrappedCores {
		cores[i] = wc.Core
	}
	core := zapcore.NewTee(cores...)
	logger := zap.New(core, zap.WithCaller(false))
	if prefix != "" {
		logger = logger.Named(prefix)
	}
	return &log{internalLogger: logger}
}

func (l *log) Fatal(msg string, fields ...zap.Field) {
	l.internalLogger.Fatal(msg, fields...)
}

func (l *log) Error(msg string, fields ...zap.Field) {
	l.internalLogger.Error(msg, fields...)
}

func (l *log) Warn(msg string, fields ...zap.Field) {
	l.internalLogger.Warn(msg, fields...)
}

func (l *log) Info(msg string, fields ...zap.Field) {
	l.internalLogger.Info(msg, fields...)
}

func (l *log) Debug(msg string, fields ...zap.Field) {
	l.internalLogger.Debug(msg, fields...)
}

func (l *log) Verbo(msg string, fields ...zap.Field) {
	l.internalLogger.Log(VerboLevel, msg, fields...)
}

func (l *log) With(fields ...zap.Field) Logger {
	return &log{internalLogger: l.internalLogger.With(fields...)}
}

func (l *log) Stop() {
	_ = l.internalLogger.Sync()
}

// NoLog drops every message. Useful in tests.
type NoLog struct{}

var _ Logger = NoLog{}

func (NoLog) Fatal(string, ...zap.Field) {}
func (NoLog) Error(string, ...zap.Field) {}
func (NoLog) Warn(string, ...zap.Field)  {}
func (NoLog) Info(string, ...zap.Field)  {}
func (NoLog) Debug(string, ...zap.Field) {}
func (NoLog) Verbo(string, ...zap.Field) {}

func (n NoLog) With(...zap.Field) Logger {
	return n
}

func (NoLog) Stop() {}
