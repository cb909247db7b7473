package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	lockStaleAfter = 30 * time.Second
	lockRetryEvery = 50 * time.Millisecond
	lockMaxWait    = 5 * time.Second
)

// FileStore keeps RunState in a JSON file. Writers serialise through a
// sibling lock file and replace the document atomically by rename.
type FileStore struct {
	path string
}

var _ ports.StateStore = (*FileStore)(nil)

// NewFileStore creates the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load returns a fresh state when the file does not exist yet.
func (s *FileStore) Load(context.Context) (domain.RunState, error) {
	return s.read()
}

// Save writes state if the stored version still equals state.Version.
func (s *FileStore) Save(ctx context.Context, state domain.RunState) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	if current.Version != state.Version {
		return conflict(state.Version, current.Version)
	}

	raw, err := encodeState(state, state.Version+1)
	if err != nil {
		return err
	}
	return s.replace(raw)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (domain.RunState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewRunState(), nil
	}
	if err != nil {
		return domain.RunState{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState(raw)
}

func (s *FileStore) replace(raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// lock takes the exclusive lock file, breaking it when its holder looks dead.
func (s *FileStore) lock(ctx context.Context) (func(), error) {
	lockPath := s.path + ".lock"
	deadline := time.Now().Add(lockMaxWait)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("state lock %s is held", lockPath)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for state lock: %w", ctx.Err())
		case <-time.After(lockRetryEvery):
		}
	}
}
