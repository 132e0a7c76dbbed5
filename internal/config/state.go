package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// State is the small piece of UI memory that survives restarts.
type State struct {
	path string
	mu   sync.Mutex

	LastOpenedFile string    `toml:"last_opened_file"`
	SavedAt        time.Time `toml:"saved_at"`
}

// LoadState reads path; a missing file yields an empty state.
func LoadState(path string) (*State, error) {
	s := &State{path: path}
	if _, err := toml.DecodeFile(path, s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, errors.Wrapf(err, "load state %s", path)
	}
	return s, nil
}

func (s *State) LastOpened() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastOpenedFile
}

// Remember stores file as the last opened one and writes the state file.
func (s *State) Remember(file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastOpenedFile = file
	s.SavedAt = time.Now().UTC().Truncate(time.Second)
	return s.save()
}

func (s *State) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "state dir")
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "save state")
	}
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		return errors.Wrap(err, "encode state")
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
