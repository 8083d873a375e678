//go:build tinygo

package log

import (
	"os"
	"sync/atomic"
)

var _ Log = (*Logger)(nil)

// Logger discards everything on TinyGo targets. The firmware's only serial
// channel carries protocol frames, so there is nowhere to write text.
type Logger struct {
	level *atomic.Uint32
}

func New(level Level) *Logger {
	l := &Logger{level: new(atomic.Uint32)}
	l.level.Store(uint32(level))
	return l
}

func Nop() *Logger {
	return New(LevelSilent)
}

func (l *Logger) Log(level Level, msg string, fields ...Field) {}

func (l *Logger) Debug(msg string, fields ...Field) {}

func (l *Logger) Info(msg string, fields ...Field) {}

func (l *Logger) Warn(msg string, fields ...Field) {}

func (l *Logger) Error(msg string, fields ...Field) {}

func (l *Logger) Fatal(msg string, fields ...Field) {
	os.Exit(1)
}

func (l *Logger) With(fields ...Field) Log {
	return &Logger{level: l.level}
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(uint32(level))
}

func (l *Logger) GetLevel() Level {
	return Level(l.level.Load())
}

func (l *Logger) Sync() error {
	return nil
}
