package logger

import (
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level aliases so callers don't import zapcore directly.
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Logs go to stderr: stdout may carry the stdio protocol channel.
var base = zap.New(
	zapcore.NewCore(
		zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "lvl",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
		}),
		zapcore.AddSync(os.Stderr),
		atomicLevel,
	),
).Sugar()

// SetLevel adjusts the global log level. Unknown values fall back to info.
func SetLevel(level string) {
	switch level {
	case DEBUG:
		atomicLevel.SetLevel(zapcore.DebugLevel)
	case INFO:
		atomicLevel.SetLevel(zapcore.InfoLevel)
	case WARN:
		atomicLevel.SetLevel(zapcore.WarnLevel)
	case ERROR:
		atomicLevel.SetLevel(zapcore.ErrorLevel)
	default:
		atomicLevel.SetLevel(zapcore.InfoLevel)
	}
}

// DebugCF logs at debug level with a component tag and structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	base.Debugw(msg, flatten(component, fields)...)
}

// InfoCF logs at info level with a component tag and structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	base.Infow(msg, flatten(component, fields)...)
}

// WarnCF logs at warn level with a component tag and structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	base.Warnw(msg, flatten(component, fields)...)
}

// ErrorCF logs at error level with a component tag and structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	base.Errorw(msg, flatten(component, fields)...)
}

func flatten(component string, fields map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, 0, 2+2*len(keys))
	out = append(out, "component", component)
	for _, k := range keys {
		out = append(out, k, fields[k])
	}
	return out
}
