package logger

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// process-wide logger used by the package-level helpers
var std atomic.Pointer[Logger]

func init() {
	l, err := New(DefaultConfig())
	if err != nil {
		logrus.Errorf("console logger unavailable, falling back to logrus defaults: %v", err)
		return
	}
	std.Store(l)
}

// InitFromConfig replaces the process logger. The previous one is closed
// after the swap so concurrent callers never see a closed logger.
func InitFromConfig(level, filePath string, maxSize, maxBackups int, console bool) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	l, err := New(LoggerConfig{
		Level:      lvl,
		FilePath:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Console:    console,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if old := std.Swap(l); old != nil {
		_ = old.Close()
	}
	return nil
}

// SetLevel adjusts the process logger without reopening its outputs.
func SetLevel(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	if l := std.Load(); l != nil {
		l.SetLevel(lvl)
	}
	return nil
}

// ParseLogLevel accepts debug, info, warn/warning and error in any case.
func ParseLogLevel(level string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	for lvl, lr := range logrusLevels {
		if lr.String() == name {
			return lvl, nil
		}
	}
	if name == "warn" {
		return WARN, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", level)
}

func Debug(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Debug(format, args...)
		return
	}
	logrus.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Info(format, args...)
		return
	}
	logrus.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Warn(format, args...)
		return
	}
	logrus.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Error(format, args...)
		return
	}
	logrus.Errorf(format, args...)
}

// Close flushes and closes the process logger's file output.
func Close() error {
	if l := std.Load(); l != nil {
		return l.Close()
	}
	return nil
}
