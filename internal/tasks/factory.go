package tasks

import (
	"context"
	"strings"
)

// NewStore returns a PostgreSQL store when databaseURL is set and an
// in-memory store otherwise.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
