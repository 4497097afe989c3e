// Package logging builds the zap-backed logr.Logger used by the daemon.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DEBUG is the logr.Logger.V level for debug output. V(0) is INFO.
const DEBUG = 1

// Logger bundles the logr front end with the level that controls it.
type Logger struct {
	logr.Logger
	level zap.AtomicLevel
}

// New returns a logger writing to w. format is "console" or "json".
func New(level zapcore.Level, format string, w io.Writer) Logger {
	atomicLevel := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), atomicLevel)
	zl := zap.New(core, zap.ErrorOutput(zapcore.AddSync(os.Stderr)))
	return Logger{Logger: zapr.NewLogger(zl), level: atomicLevel}
}

// Default logs INFO and above to stderr. It is used until the configuration
// has been read.
func Default() Logger {
	return New(zapcore.InfoLevel, "console", os.Stderr)
}

// SetLevel changes the threshold of l and every logger derived from it.
func (l Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current threshold.
func (l Logger) Level() zapcore.Level {
	return l.level.Level()
}

// ParseLevel accepts syslog severity names or numbers (0 = emergency
// through 7 = debug) as well as zap's own level names. Severities above
// error collapse to error.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 7 {
			return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
		}
		return syslogLevels[n], nil
	}
	switch s {
	case "emergency", "emerg", "alert", "critical", "crit", "error", "err":
		return zapcore.ErrorLevel, nil
	case "warning", "warn":
		return zapcore.WarnLevel, nil
	case "notice", "info", "":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
}

var syslogLevels = [8]zapcore.Level{
	zapcore.ErrorLevel, // emergency
	zapcore.ErrorLevel, // alert
	zapcore.ErrorLevel, // critical
	zapcore.ErrorLevel,
	zapcore.WarnLevel,
	zapcore.InfoLevel, // notice
	zapcore.InfoLevel,
	zapcore.DebugLevel,
}

// Fatal calls logger.Error followed by os.Exit(1).
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
