package recordstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore keeps one <kind>.json file per collection under a directory.
// The directory is created on the first write.
type FileStore struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex
	written map[Kind][sha256.Size]byte
}

func NewFileStore(dir string, log *slog.Logger) *FileStore {
	if strings.TrimSpace(dir) == "" {
		dir = "data"
	}
	return &FileStore{dir: dir, log: log, written: make(map[Kind][sha256.Size]byte)}
}

func (s *FileStore) path(kind Kind) string {
	return filepath.Join(s.dir, string(kind)+".json")
}

func (s *FileStore) Load(_ context.Context, kind Kind) ([]byte, error) {
	doc, err := os.ReadFile(s.path(kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path(kind), err)
	}
	return doc, nil
}

func (s *FileStore) Save(_ context.Context, kind Kind, doc []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	s.mu.Lock()
	s.written[kind] = sha256.Sum256(doc)
	s.mu.Unlock()
	if err := os.WriteFile(s.path(kind), doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path(kind), err)
	}
	return nil
}

func (s *FileStore) Wipe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range Kinds {
		if err := os.Remove(s.path(kind)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", s.path(kind), err)
		}
		delete(s.written, kind)
	}
	return nil
}

func (s *FileStore) Backend() string { return BackendFile }

func (s *FileStore) Close() error { return nil }

// Watch calls onChange when a collection file changes on disk to content
// this store did not write itself. It blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func(Kind)) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating store watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching data dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			kind, ok := s.kindFor(event.Name)
			if !ok || s.isOwnWrite(kind) {
				continue
			}
			if s.log != nil {
				s.log.Debug("collection changed on disk", "kind", kind, "op", event.Op.String())
			}
			onChange(kind)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("store watcher error: %w", err)
		}
	}
}

func (s *FileStore) kindFor(name string) (Kind, bool) {
	for _, kind := range Kinds {
		if filepath.Clean(name) == filepath.Clean(s.path(kind)) {
			return kind, true
		}
	}
	return "", false
}

func (s *FileStore) isOwnWrite(kind Kind) bool {
	doc, err := os.ReadFile(s.path(kind))
	if err != nil {
		return false
	}
	sum := sha256.Sum256(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.written[kind]
	return ok && bytes.Equal(last[:], sum[:])
}
