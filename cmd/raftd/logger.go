package main

import "go.uber.org/zap"

// zapLogger adapts *zap.SugaredLogger to raft.Logger, the engine's only
// logging dependency (spec §5: "the core never writes to stdout/stderr
// directly").
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func newZapLogger(sugar *zap.SugaredLogger) zapLogger {
	return zapLogger{sugar: sugar}
}

func (l zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
