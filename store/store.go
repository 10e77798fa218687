// Package store loads and saves ILM modules.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
)

// Ext is the file extension of ILM modules.
const Ext = ".ilm"

// Store reads and writes modules by path.
type Store interface {
	Load(path string) (*il.Module, error)
	Save(m *il.Module, path string) error
}

// Files is a Store backed by the file system.
type Files struct {
	// Validate runs structural validation after parsing.
	Validate bool
}

// NewFiles returns a file system store.
func NewFiles(validate bool) *Files {
	return &Files{Validate: validate}
}

// Load parses the module at path. Failures are load errors.
func (s *Files) Load(path string) (*il.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(path, err)
	}
	m, err := decode(path, data, s.Validate)
	if err != nil {
		return nil, err
	}
	Logger().Debug("module loaded",
		zap.String("path", path),
		zap.String("module", m.Name),
		zap.Int("types", len(m.Types)),
		zap.Int("methods", m.MethodCount()),
		zap.Int("fields", m.FieldCount()),
		zap.Int("bytes", len(data)))
	return m, nil
}

// Save encodes m and replaces the file at path.
// The write goes through a temporary file in the same directory.
func (s *Files) Save(m *il.Module, path string) error {
	data, err := m.Encode()
	if err != nil {
		return errors.Save(path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Save(path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Save(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Save(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Save(path, err)
	}
	Logger().Debug("module saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Memory is an in-memory Store keyed by path.
type Memory struct {
	files map[string][]byte
	mu    sync.Mutex
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Put stores raw module bytes under path.
func (s *Memory) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filepath.Clean(path)] = append([]byte(nil), data...)
}

// Bytes returns the raw bytes stored under path.
func (s *Memory) Bytes(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[filepath.Clean(path)]
	return data, ok
}

// Load parses the module stored under path.
func (s *Memory) Load(path string) (*il.Module, error) {
	data, ok := s.Bytes(path)
	if !ok {
		return nil, errors.Load(path, os.ErrNotExist)
	}
	return decode(path, data, false)
}

// Save encodes m under path.
func (s *Memory) Save(m *il.Module, path string) error {
	data, err := m.Encode()
	if err != nil {
		return errors.Save(path, err)
	}
	s.Put(path, data)
	return nil
}

func decode(path string, data []byte, validate bool) (*il.Module, error) {
	m, err := il.ParseModule(data)
	if err != nil {
		return nil, errors.Load(path, err)
	}
	if validate {
		if err := m.Validate(); err != nil {
			return nil, errors.Load(path, fmt.Errorf("validate: %w", err))
		}
	}
	return m, nil
}
