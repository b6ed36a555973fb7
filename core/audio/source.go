package audio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileSource is a MediaRef backed by a file on disk. When Temp is set the
// file belongs to the track and is deleted on Release.
type FileSource struct {
	Path string
	Temp bool

	// DisplayName overrides the name derived from Path (uploads are stored
	// under generated names).
	DisplayName string

	once sync.Once
	err  error
}

// NewFileSource references an existing file the deck does not own.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// NewTempFileSource references a file the deck owns and deletes on release.
func NewTempFileSource(path, originalName string) *FileSource {
	return &FileSource{Path: path, Temp: true, DisplayName: originalName}
}

func (s *FileSource) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return filepath.Base(s.Path)
}

func (s *FileSource) Open() (io.ReadSeekCloser, error) {
	return os.Open(s.Path)
}

func (s *FileSource) Release() error {
	if !s.Temp {
		return nil
	}
	s.once.Do(func() {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.err = err
		}
	})
	return s.err
}

// MemorySource is a MediaRef holding the whole file in memory.
type MemorySource struct {
	name string

	mu   sync.RWMutex
	data []byte
}

func NewMemorySource(name string, data []byte) *MemorySource {
	return &MemorySource{name: name, data: data}
}

func (s *MemorySource) Name() string { return s.name }

func (s *MemorySource) Open() (io.ReadSeekCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, os.ErrClosed
	}
	return nopCloser{bytes.NewReader(s.data)}, nil
}

func (s *MemorySource) Release() error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
