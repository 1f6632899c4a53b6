package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

const appDirName = "monzo-balances"

// FileStore persists values to a YAML file. Every write replaces the whole
// file atomically, so a crash never leaves half of a token set on disk.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// DefaultPath returns the per-user config file location, e.g.
// ~/.config/monzo-balances/config.yaml.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appDirName, "config.yaml"), nil
}

// OpenFileStore loads the file at path. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, values: map[string]string{}}
	if err := fs.load(); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return fs, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Get returns the value stored under key.
func (f *FileStore) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

// Set stores a single key; an empty value removes it.
func (f *FileStore) Set(key, value string) error {
	return f.SetAll(map[string]string{key: value})
}

// SetAll applies values and rewrites the file once, atomically.
func (f *FileStore) SetAll(values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := make(map[string]string, len(f.values)+len(values))
	for k, v := range f.values {
		next[k] = v
	}
	apply(next, values)
	if err := f.save(next); err != nil {
		return fmt.Errorf("failed to save config %s: %w", f.path, err)
	}
	f.values = next
	return nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return err
	}
	for k, v := range values {
		if v != "" {
			f.values[k] = v
		}
	}
	return nil
}

func (f *FileStore) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	return atomic.WriteFile(f.path, bytes.NewReader(data))
}
