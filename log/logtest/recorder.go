/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-batchproxy/log"
)

// RecordedEntry is a logged entry kept by Recorder.
type RecordedEntry struct {
	Fields []log.Field
	Level  log.Level
	Time   time.Time
	Text   string
}

// FindField returns the first field of the entry with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

var levels = map[logf.Level]log.Level{
	logf.LevelError: log.LevelError,
	logf.LevelWarn:  log.LevelWarn,
	logf.LevelInfo:  log.LevelInfo,
	logf.LevelDebug: log.LevelDebug,
}

// entryStore is shared by a Recorder and all loggers derived from it.
type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic // logf.EntryWriter signature
func (s *entryStore) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	s.mu.Lock()
	s.entries = append(s.entries, RecordedEntry{Fields: fields, Level: levels[e.Level], Time: e.Time, Text: e.Text})
	s.mu.Unlock()
}

// Recorder is a log.FieldLogger that keeps all entries in memory (debug level included).
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

var _ log.FieldLogger = (*Recorder)(nil)

// NewRecorder creates a new Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

// With returns a logger that records into the same Recorder.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return r.derive(r.LogfAdapter.With(fs...))
}

// WithLevel returns a logger that records into the same Recorder with an additional level check.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return r.derive(r.LogfAdapter.WithLevel(level))
}

func (r *Recorder) derive(l log.FieldLogger) *Recorder {
	return &Recorder{LogfAdapter: l.(*log.LogfAdapter), store: r.store}
}

// Entries returns a copy of recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]RecordedEntry(nil), r.store.entries...)
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntryByFilter returns the first entry matching the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	for _, entry := range r.Entries() {
		if filter(entry) {
			return entry, true
		}
	}
	return RecordedEntry{}, false
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}
