package main

import (
    "os"
    "strings"
    "time"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// EventLogger writes timestamped events to the console and, when a file path
// is configured, appends them to a log file.  It is safe for concurrent use.
// Components that want structured fields take a named child via Named.
type EventLogger struct {
    sugar *zap.SugaredLogger
    file  *os.File
}

// NewEventLogger creates a logger writing to filePath at the given level.  An
// empty filePath logs to standard error only.
func NewEventLogger(filePath, level string) (*EventLogger, error) {
    lvl := parseLevel(level)
    encCfg := zap.NewProductionEncoderConfig()
    encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
    encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

    cores := []zapcore.Core{
        zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl),
    }
    el := &EventLogger{}
    if filePath != "" {
        // Open file in append mode, create if not exists
        f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
        if err != nil {
            return nil, err
        }
        el.file = f
        cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), lvl))
    }
    el.sugar = zap.New(zapcore.NewTee(cores...)).Sugar()
    return el, nil
}

// NewNopEventLogger returns a logger that discards everything.  Used by tests
// and by tools that do not want output.
func NewNopEventLogger() *EventLogger {
    return &EventLogger{sugar: zap.NewNop().Sugar()}
}

// parseLevel maps the configured level name onto a zap level.  Unknown names
// fall back to INFO.
func parseLevel(level string) zapcore.Level {
    switch strings.ToUpper(level) {
    case "DEBUG":
        return zapcore.DebugLevel
    case "WARN":
        return zapcore.WarnLevel
    case "ERROR":
        return zapcore.ErrorLevel
    default:
        return zapcore.InfoLevel
    }
}

// Log writes a single informational event.
func (el *EventLogger) Log(format string, args ...any) {
    el.sugar.Infof(format, args...)
}

// Named returns a component logger tagged with name.
func (el *EventLogger) Named(name string) *zap.SugaredLogger {
    return el.sugar.Named(name)
}

// Close flushes buffered entries and closes the log file, if any.
func (el *EventLogger) Close() error {
    _ = el.sugar.Sync()
    if el.file != nil {
        return el.file.Close()
    }
    return nil
}
