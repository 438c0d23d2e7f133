/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-validatorkit/log"
)

// RecordedEntry is an entry captured by Recorder.
type RecordedEntry struct {
	LoggerName string
	Level      log.Level
	Time       time.Time
	Text       string
	// Fields contains both the entry fields and the fields bound by With.
	Fields []log.Field
}

// FindField returns the first field with the key.
func (e *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Key == key {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// StringField returns the value of a string or bytes field.
func (e *RecordedEntry) StringField(key string) (string, bool) {
	if field, ok := e.FindField(key); ok {
		return string(field.Bytes), true
	}
	return "", false
}

type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic // logf.EntryWriter signature
func (s *entryStore) WriteEntry(entry logf.Entry) {
	fields := make([]log.Field, 0, len(entry.Fields)+len(entry.DerivedFields))
	fields = append(fields, entry.Fields...)
	fields = append(fields, entry.DerivedFields...)
	recorded := RecordedEntry{
		LoggerName: entry.LoggerName,
		Level:      levelFromLogf(entry.Level),
		Time:       entry.Time,
		Text:       entry.Text,
		Fields:     fields,
	}
	s.mu.Lock()
	s.entries = append(s.entries, recorded)
	s.mu.Unlock()
}

func (s *entryStore) filter(match func(entry RecordedEntry) bool, firstOnly bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []RecordedEntry
	for _, entry := range s.entries {
		if match(entry) {
			found = append(found, entry)
			if firstOnly {
				break
			}
		}
	}
	return found
}

// Recorder is a log.FieldLogger that keeps all entries (at any level) in memory.
// Loggers derived by With and WithLevel share the storage with the parent.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

// With implements log.FieldLogger.
func (r *Recorder) With(fields ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fields...).(*log.LogfAdapter), r.store}
}

// WithLevel implements log.FieldLogger.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.store}
}

// Entries returns a copy of the recorded entries. It's never nil.
func (r *Recorder) Entries() []RecordedEntry {
	return append([]RecordedEntry{}, r.store.filter(func(RecordedEntry) bool { return true }, false)...)
}

// FindEntry returns the first entry with the message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntryByFilter returns the first entry matching the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.store.filter(filter, true); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns all entries matching the filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.store.filter(filter, false)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}

func levelFromLogf(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
