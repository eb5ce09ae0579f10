// Package recordstore persists whole JSON collections, one document per
// entity kind. Every save rewrites the full collection and the last write
// wins; there is no cross-process locking.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names one logical collection.
type Kind string

const (
	KindUsers         Kind = "users"
	KindConversations Kind = "conversations"
	KindMemories      Kind = "memories"
)

// Kinds lists every collection the service owns.
var Kinds = []Kind{KindUsers, KindConversations, KindMemories}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var ErrUnknownBackend = errors.New("unknown record store backend")

// Store loads and saves raw collection documents. Load returns a nil
// document and no error when the collection has never been written.
type Store interface {
	Load(ctx context.Context, kind Kind) ([]byte, error)
	Save(ctx context.Context, kind Kind, doc []byte) error
	Wipe(ctx context.Context) error
	Backend() string
	Close() error
}

// Watcher is implemented by stores that can report changes made outside
// this process.
type Watcher interface {
	Watch(ctx context.Context, onChange func(Kind)) error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	SQLitePath  string
	DatabaseURL string
	Logger      *slog.Logger
}

// Open creates the configured backend. An empty backend means file.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		return NewFileStore(opts.DataDir, opts.Logger), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case BackendMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// LoadCollection decodes a collection keyed by id (or, for memories, by
// user id). A missing or corrupt document yields an empty, non-nil map; a
// corrupt one is logged. Backend read failures are returned.
func LoadCollection[V any](ctx context.Context, s Store, kind Kind, log *slog.Logger) (map[string]V, error) {
	doc, err := s.Load(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	out := make(map[string]V)
	if len(strings.TrimSpace(string(doc))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(doc, &out); err != nil {
		if log != nil {
			log.Warn("corrupt collection treated as empty", "kind", kind, "err", err)
		}
		return make(map[string]V), nil
	}
	if out == nil {
		out = make(map[string]V)
	}
	return out, nil
}

// SaveCollection encodes and writes the whole collection.
func SaveCollection[V any](ctx context.Context, s Store, kind Kind, records map[string]V) error {
	if records == nil {
		records = make(map[string]V)
	}
	doc, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := s.Save(ctx, kind, doc); err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	return nil
}

// NewID returns "<prefix>-<unix ms>-<random suffix>".
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}
