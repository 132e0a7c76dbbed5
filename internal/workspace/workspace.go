// Package workspace keeps the tables the user has opened, keyed by id.
package workspace

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"colmatch-service/internal/dataset"
	"colmatch-service/internal/loader"
)

type State string

const (
	Loading State = "loading"
	Preview State = "preview"
	Ready   State = "ready"
	Failed  State = "failed"
)

var (
	ErrNotFound   = errors.New("dataset not found")
	ErrNotReady   = errors.New("dataset is still loading")
	ErrLoadFailed = errors.New("dataset failed to load")
	// ErrVersionConflict: таблица поменялась, пока шло сопоставление.
	ErrVersionConflict = errors.New("dataset changed concurrently")
)

// Entry is a snapshot; Dataset must be treated as read-only.
type Entry struct {
	ID       string           `json:"id"`
	FileName string           `json:"file_name"`
	State    State            `json:"state"`
	Error    string           `json:"error,omitempty"`
	Version  int              `json:"version"`
	Updated  time.Time        `json:"updated"`
	Dataset  *dataset.Dataset `json:"-"`
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func New() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Create registers a table that is about to be loaded.
func (s *Store) Create(fileName string) Entry {
	e := &Entry{ID: uuid.NewString(), FileName: fileName, State: Loading, Updated: time.Now()}
	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()
	return *e
}

func (s *Store) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return *e, nil
}

// Ready returns the entry only once the full sheet is available.
func (s *Store) Ready(id string) (Entry, error) {
	e, err := s.Get(id)
	if err != nil {
		return e, err
	}
	switch e.State {
	case Ready:
		return e, nil
	case Failed:
		return e, errors.Mark(errors.Newf("dataset %s failed to load: %s", id, e.Error), ErrLoadFailed)
	default:
		return e, errors.Wrapf(ErrNotReady, "%s", id)
	}
}

// Apply records a loader event. A late preview never replaces a full table.
func (s *Store) Apply(id string, ev loader.Event) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	switch ev.Kind {
	case loader.PreviewReady:
		if e.State != Loading {
			return *e, nil
		}
		e.State, e.Dataset = Preview, ev.Dataset
	case loader.FullReady:
		e.State, e.Dataset = Ready, ev.Dataset
	case loader.Failed:
		e.State = Failed
		if ev.Err != nil {
			e.Error = ev.Err.Error()
		}
	}
	e.Version++
	e.Updated = time.Now()
	return *e, nil
}

// Follow drains a loader stream into the entry and calls onReady once the
// full table is in. It returns when the stream is closed.
func (s *Store) Follow(id string, events <-chan loader.Event, onReady func(Entry)) {
	for ev := range events {
		e, err := s.Apply(id, ev)
		if err != nil {
			continue
		}
		if ev.Kind == loader.FullReady && onReady != nil {
			onReady(e)
		}
	}
}

// Replace swaps in a new version of a ready table (e.g. after matching).
// version is the one the caller read ds from; a newer entry wins and the
// call fails with ErrVersionConflict.
func (s *Store) Replace(id string, version int, ds *dataset.Dataset) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	if e.State != Ready {
		return *e, errors.Wrapf(ErrNotReady, "%s", id)
	}
	if e.Version != version {
		return *e, errors.WithHint(
			errors.Wrapf(ErrVersionConflict, "%s: version %d, expected %d", id, e.Version, version),
			"run the match again on the current table")
	}
	e.Dataset = ds
	e.Version++
	e.Updated = time.Now()
	return *e, nil
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// List returns all entries, most recently updated first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Updated.Equal(out[j].Updated) {
			return out[i].Updated.After(out[j].Updated)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
