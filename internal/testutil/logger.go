// Package testutil holds helpers shared by package tests.
package testutil

import (
	"sync"

	"github.com/coachpo/atomictrader/internal/observability"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  []observability.Field
}

// RecordingLogger captures log calls for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewRecordingLogger constructs an empty recorder.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) Debug(msg string, fields ...observability.Field) {
	l.add("debug", msg, fields)
}

func (l *RecordingLogger) Info(msg string, fields ...observability.Field) {
	l.add("info", msg, fields)
}

func (l *RecordingLogger) Warn(msg string, fields ...observability.Field) {
	l.add("warn", msg, fields)
}

func (l *RecordingLogger) Error(msg string, fields ...observability.Field) {
	l.add("error", msg, fields)
}

// Entries returns a copy of the captured entries.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Count returns the number of entries logged at level.
func (l *RecordingLogger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (l *RecordingLogger) add(level, msg string, fields []observability.Field) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Fields: fields})
	l.mu.Unlock()
}
