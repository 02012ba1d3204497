package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	documentFileMode = 0o600
	documentDirMode  = 0o700
	tempFilePattern  = ".activity-*.json.tmp"
)

// Backend is the raw storage slot behind a Ledger: one opaque document
// under one key. Implementations are injected so tests can substitute an
// in-memory store and multiple ledgers can coexist without key collisions.
type Backend interface {
	// Read returns the stored document, or (nil, nil) when nothing has
	// been written yet.
	Read() ([]byte, error)
	// Write overwrites the stored document unconditionally.
	Write(data []byte) error
}

// FileBackend stores the document in a single file, replaced atomically on
// every write via a temp file and rename.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Read() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read activity document: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, documentDirMode); err != nil {
		return fmt.Errorf("create activity directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Chmod(documentFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace activity document: %w", err)
	}
	return nil
}

// MemoryBackend keeps the document in memory. WriteErr, when set, makes
// every Write fail, which tests use to exercise the best-effort
// persistence path.
type MemoryBackend struct {
	mu       sync.Mutex
	data     []byte
	WriteErr error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Read() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

func (b *MemoryBackend) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WriteErr != nil {
		return b.WriteErr
	}
	b.data = make([]byte, len(data))
	copy(b.data, data)
	return nil
}

// Seed replaces the stored bytes directly, bypassing WriteErr.
func (b *MemoryBackend) Seed(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
}
