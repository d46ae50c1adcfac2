package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultRecorderSize bounds a [Recorder] created with a non-positive size.
const DefaultRecorderSize = 1000

// Entry is a captured log record, with attributes flattened to strings.
// Grouped keys are joined with dots.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Attrs)) {
		fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
	}
	return b.String()
}

// Recorder is a [slog.Handler] keeping the most recent records in memory.
// Handlers derived through WithAttrs and WithGroup share the same buffer.
type Recorder struct {
	store *entryStore
	level slog.Leveler
	group string
	attrs map[string]string
}

type entryStore struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

var _ slog.Handler = (*Recorder)(nil)

// NewRecorder returns a Recorder keeping at most size entries, dropping the
// oldest first. A nil level records everything.
func NewRecorder(size int, level slog.Leveler) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	if level == nil {
		level = slog.Level(-8)
	}
	return &Recorder{
		store: &entryStore{entries: make([]Entry, 0, min(size, 64)), max: size},
		level: level,
	}
}

// Logger returns a logger writing to r.
func (r *Recorder) Logger() *slog.Logger { return slog.New(r) }

func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *Recorder) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(r.attrs)+record.NumAttrs())
	maps.Copy(attrs, r.attrs)
	record.Attrs(func(a slog.Attr) bool {
		flatten(attrs, r.group, a)
		return true
	})
	entry := Entry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.max {
		s.entries = slices.Delete(s.entries, 0, 1)
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (r *Recorder) WithAttrs(as []slog.Attr) slog.Handler {
	if len(as) == 0 {
		return r
	}
	c := *r
	c.attrs = maps.Clone(r.attrs)
	if c.attrs == nil {
		c.attrs = make(map[string]string, len(as))
	}
	for _, a := range as {
		flatten(c.attrs, r.group, a)
	}
	return &c
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	c := *r
	c.group = join(r.group, name)
	return &c
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = join(prefix, a.Key)
		}
		for _, g := range a.Value.Group() {
			flatten(dst, p, g)
		}
		return
	}
	dst[join(prefix, a.Key)] = a.Value.String()
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Entries returns a copy of every retained entry, oldest first.
func (r *Recorder) Entries() []Entry {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return slices.Clone(r.store.entries)
}

// Recent returns the n most recent entries, or all of them if n is not in
// (0, Len()].
func (r *Recorder) Recent(n int) []Entry {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	entries := r.store.entries
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	return slices.Clone(entries[len(entries)-n:])
}

// Search returns the entries whose message, attribute keys or attribute
// values contain query, case-insensitively.
func (r *Recorder) Search(query string) []Entry {
	query = strings.ToLower(query)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), query) }

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []Entry
	for _, e := range r.store.entries {
		if contains(e.Message) {
			out = append(out, e)
			continue
		}
		for k, v := range e.Attrs {
			if contains(k) || contains(v) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Len returns the number of retained entries.
func (r *Recorder) Len() int {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.entries)
}

// Clear discards every retained entry.
func (r *Recorder) Clear() {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.entries = r.store.entries[:0]
}
