package relay

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// QueryWriter owns the local query file: the one slot holding the
// most recent message for the external consumer. Every write replaces
// the whole file.
type QueryWriter struct {
	mu   sync.Mutex
	path string
}

// NewQueryWriter makes sure the query file exists, creating it
// empty if it is absent.
func NewQueryWriter(path string) (*QueryWriter, error) {
	if path == "" {
		return nil, errors.New("query file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return &QueryWriter{path: path}, nil
}

func (q *QueryWriter) Path() string {
	return q.path
}

// Write replaces the content of the query file with message
// verbatim. The content is written to a temporary file in the same
// directory and renamed over the query file, so readers see either
// the old or the new message and never a mix of two.
func (q *QueryWriter) Write(message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dir, base := filepath.Split(q.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(message); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Read returns the current content of the query file.
func (q *QueryWriter) Read() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return os.ReadFile(q.path)
}
