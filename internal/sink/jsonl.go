package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/torosent/tickfire/internal/session"
)

// ErrFileLocked is returned when another process is already writing the file.
var ErrFileLocked = errors.New("output file is locked by another run")

// JSONLines appends one JSON object per outcome to a file. An advisory lock
// on "<path>.lock" keeps concurrent runs from interleaving the same file.
type JSONLines struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	lock *flock.Flock
	err  error
}

// NewJSONLines opens (or creates) path for appending.
func NewJSONLines(path string) (*JSONLines, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrFileLocked)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JSONLines{file: file, buf: bufio.NewWriter(file), lock: lock}, nil
}

func (j *JSONLines) Record(o session.Outcome) {
	line, err := json.Marshal(o)
	if err != nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil || j.file == nil {
		return
	}
	if _, err := j.buf.Write(line); err != nil {
		j.err = err
		return
	}
	if err := j.buf.WriteByte('\n'); err != nil {
		j.err = err
	}
}

// Err returns the first write error, if any.
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Close flushes buffered lines, closes the file, and releases the lock. The
// lock file is left behind so every run locks the same inode.
func (j *JSONLines) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return j.err
	}

	err := j.buf.Flush()
	if closeErr := j.file.Close(); err == nil {
		err = closeErr
	}
	j.file = nil
	if unlockErr := j.lock.Unlock(); err == nil {
		err = unlockErr
	}
	if err == nil {
		err = j.err
	}
	return err
}
