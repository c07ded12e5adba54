package log

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func init() {
	zap.ReplaceGlobals(zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(config()),
		zapcore.Lock(os.Stdout),
		logLevel,
	)))
}

func config() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

// Debug logs a debug message with alternating key/value
// pairs. Refer to:
// https://godoc.org/go.uber.org/zap#SugaredLogger.Debugw
// for more details.
func Debug(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw(msg, keysAndValues...)
}

// Info logs an info message with alternating key/value
// pairs.
func Info(msg string, keysAndValues ...interface{}) {
	zap.S().Infow(msg, keysAndValues...)
}

// Warn logs a warning message with alternating key/value
// pairs.
func Warn(msg string, keysAndValues ...interface{}) {
	zap.S().Warnw(msg, keysAndValues...)
}

// Error logs an error message with alternating key/value
// pairs.
func Error(msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, keysAndValues...)
}

// Panic logs a message and then panics.
func Panic(msg string, keysAndValues ...interface{}) {
	zap.S().Panicw(msg, keysAndValues...)
}

// Fatal logs a message and then calls os.Exit(1).
func Fatal(msg string, keysAndValues ...interface{}) {
	zap.S().Fatalw(msg, keysAndValues...)
}

// SetLevel sets the log level by specifying a string
// which can be any of:
// ["DEBUG", "INFO", "WARN", "ERROR", "PANIC", "FATAL"],
// case-insensitive.
func SetLevel(level string) error {
	var l zapcore.Level
	switch Clean(level) {
	case "debug":
		l = zapcore.DebugLevel
	case "info":
		l = zapcore.InfoLevel
	case "warn", "warning":
		l = zapcore.WarnLevel
	case "error":
		l = zapcore.ErrorLevel
	case "panic":
		l = zapcore.PanicLevel
	case "fatal":
		l = zapcore.FatalLevel
	default:
		return fmt.Errorf("invalid log level string: %v", level)
	}

	logLevel.SetLevel(l)
	return nil
}

// GetLevel returns the current log level.
func GetLevel() zapcore.Level {
	return logLevel.Level()
}

// Clean trims and lower-cases free text so it can be
// compared or used as a structured value.
func Clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
