// Package logging builds the process slog handler and adapts pion's leveled
// logger interface onto it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pion/logging"
)

// ParseLevel maps a flag value to a slog level. Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func New(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}))
}

// PionFactory implements logging.LoggerFactory on top of slog so that ICE, DTLS
// and SCTP messages land in the same stream as ours.
type PionFactory struct {
	Logger *slog.Logger
}

func NewPionFactory(logger *slog.Logger) *PionFactory {
	return &PionFactory{Logger: logger}
}

func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{logger: f.Logger.With("component", "pion", "scope", scope)}
}

type pionLogger struct {
	logger *slog.Logger
}

var _ logging.LeveledLogger = (*pionLogger)(nil)

// pion traces are far noisier than its debug output, so both end up at debug.
func (l *pionLogger) Trace(msg string) { l.logger.Debug(msg) }
func (l *pionLogger) Tracef(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Debug(msg string) { l.logger.Debug(msg) }
func (l *pionLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Info(msg string) { l.logger.Info(msg) }
func (l *pionLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Warn(msg string) { l.logger.Warn(msg) }
func (l *pionLogger) Warnf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Error(msg string) { l.logger.Error(msg) }
func (l *pionLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
