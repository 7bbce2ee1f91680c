// Package logging provides the crawler's leveled logger: a small sink
// registry around logrus, where each sink (stderr or an extra file) carries
// its own threshold rather than sharing a single global level.
package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is an app-level value, constructed once and passed by reference
// to every component that needs to log. There is no package-level global
// logger; this replaces the source's process-scope log statics.
type Logger struct {
	base *logrus.Logger

	mu    sync.Mutex // guards sinks; also doubles as the optional external lock
	sinks []*sink
}

type sink struct {
	hook *levelHook
}

// New returns a Logger with no sinks attached. Call AddSink at least once
// (or AddStderr) before logging anything useful; an unattached Logger
// silently drops everything, matching rxi/log-style libraries whose default
// state is "quiet until configured".
func New() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.TraceLevel)
	return &Logger{base: base}
}

// AddStderr attaches stderr as a sink at the given threshold.
func (l *Logger) AddStderr(level logrus.Level) {
	l.AddSink(logrus.StandardLogger().Out, level)
}

// AddSink attaches an io.Writer sink with its own level threshold. Multiple
// sinks may be attached; each receives only entries at or above its own
// level, independent of any other sink's threshold.
func (l *Logger) AddSink(w io.Writer, level logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := &levelHook{w: w, level: level, formatter: &logrus.TextFormatter{FullTimestamp: true}}
	l.base.AddHook(h)
	l.sinks = append(l.sinks, &sink{hook: h})
}

// levelHook is a logrus.Hook that writes to w only for entries at or above
// level, independent of the logger's global level (which we keep at Trace
// so every sink sees every candidate entry and filters for itself).
type levelHook struct {
	w         io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func (h *levelHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *levelHook) Fire(e *logrus.Entry) error {
	if e.Level > h.level {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}

// Lock acquires an optional external synchronization lock. Components
// that log from multiple goroutines (the HTTP client's transfer workers,
// in particular) should hold it across a burst of related log calls;
// routine single-call logging does not need it since logrus entries are
// already safe for concurrent use.
func (l *Logger) Lock()   { l.mu.Lock() }
func (l *Logger) Unlock() { l.mu.Unlock() }

func (l *Logger) Tracef(format string, args ...any) { l.base.Tracef(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.base.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.base.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.base.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.base.Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.base.Fatalf(format, args...) }

// WithFields returns a logrus.Entry pre-populated with the given fields,
// for components that want structured context (e.g. url=... depth=...).
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.base.WithFields(fields)
}
