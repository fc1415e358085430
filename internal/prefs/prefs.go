// Package prefs persists client preferences, including the flag that records
// a completed legacy store migration.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the preference file name inside the config directory.
const FileName = "prefs.yaml"

// Document is the on-disk layout. Keys this package does not own are kept
// as they were read.
type Document struct {
	Upgraded Upgraded       `yaml:"upgraded"`
	Extra    map[string]any `yaml:",inline"`
}

// Upgraded groups migration flags.
type Upgraded struct {
	Store bool `yaml:"store"`
}

// File is a flag store backed by a YAML file.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File for path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load reads the document. A missing file is an empty document.
func (f *File) Load() (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (Document, error) {
	var doc Document
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("reading prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing prefs %s: %w", f.path, err)
	}
	return doc, nil
}

// Upgraded reports whether the migration flag is set.
func (f *File) Upgraded() (bool, error) {
	doc, err := f.Load()
	if err != nil {
		return false, err
	}
	return doc.Upgraded.Store, nil
}

// SetUpgraded sets the migration flag, keeping every other preference.
func (f *File) SetUpgraded() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return err
	}
	doc.Upgraded.Store = true
	return f.save(doc)
}

// save writes doc through a temp file and rename so a crash never leaves a
// truncated file behind.
func (f *File) save(doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding prefs: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing prefs: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Memory is an in-process flag store.
type Memory struct {
	mu       sync.Mutex
	upgraded bool
}

// Upgraded reports whether the flag is set.
func (m *Memory) Upgraded() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upgraded, nil
}

// SetUpgraded sets the flag.
func (m *Memory) SetUpgraded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upgraded = true
	return nil
}
