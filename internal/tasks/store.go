package tasks

import (
	"context"
	"errors"
	"time"
)

var ErrStoreNotFound = errors.New("task not found in store")

type Store interface {
	SaveTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListTasksByUser(ctx context.Context, userID string) ([]Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListDue(ctx context.Context, now time.Time) ([]Task, error)
	Mode() string
	Close() error
}
