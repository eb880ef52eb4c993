// Package hosts persists the user's saved connection targets as a JSON
// file next to the application, editable by hand.
package hosts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Host is one saved connection target. Password is stored in the clear —
// the host file lives on the user's own machine and protecting it is the
// filesystem's job, not ours.
type Host struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store reads and writes the host list at a fixed path.
type Store struct {
	path string
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads all saved hosts. A missing file is created as an empty list
// so a fresh install starts with a valid store.
func (s *Store) Load() ([]Host, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.Save(nil); err != nil {
			return nil, err
		}
		return []Host{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hosts: read %s: %w", s.path, err)
	}

	var list []Host
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("hosts: parse %s: %w", s.path, err)
	}
	return list, nil
}

// Save writes the full host list, replacing the previous contents.
func (s *Store) Save(list []Host) error {
	if list == nil {
		list = []Host{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return fmt.Errorf("hosts: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("hosts: create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("hosts: write %s: %w", s.path, err)
	}
	return nil
}

// Add appends a host, replacing any existing entry with the same name.
func (s *Store) Add(h Host) error {
	list, err := s.Load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].Name == h.Name {
			list[i] = h
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, h)
	}
	return s.Save(list)
}

// Find returns the host with the given name.
func (s *Store) Find(name string) (Host, error) {
	list, err := s.Load()
	if err != nil {
		return Host{}, err
	}
	for _, h := range list {
		if h.Name == name {
			return h, nil
		}
	}
	return Host{}, fmt.Errorf("hosts: no saved host named %q", name)
}
