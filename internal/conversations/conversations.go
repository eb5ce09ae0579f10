// Package conversations stores chat history, one document keyed by
// conversation id. Every read and write is scoped to the owning user; a
// conversation owned by someone else is indistinguishable from a missing one.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ent0n29/saba/internal/recordstore"
)

var (
	ErrNotFound    = errors.New("conversation not found")
	ErrInvalidRole = errors.New("invalid message role")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type Conversation struct {
	ID        string                `json:"id"`
	UserID    string                `json:"userId"`
	Title     string                `json:"title"`
	Messages  []Message             `json:"messages"`
	CreatedAt recordstore.Timestamp `json:"createdAt"`
	UpdatedAt recordstore.Timestamp `json:"updatedAt"`
	Memorized bool                  `json:"memorized"`
}

func (c Conversation) clone() Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	return c
}

// Repository owns the conversations collection.
type Repository struct {
	store recordstore.Store
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

func NewRepository(store recordstore.Store, log *slog.Logger) *Repository {
	return &Repository{store: store, log: log, now: time.Now}
}

func (r *Repository) load(ctx context.Context) (map[string]Conversation, error) {
	return recordstore.LoadCollection[Conversation](ctx, r.store, recordstore.KindConversations, r.log)
}

func (r *Repository) save(ctx context.Context, all map[string]Conversation) error {
	return recordstore.SaveCollection(ctx, r.store, recordstore.KindConversations, all)
}

// mutate runs fn against the caller's conversation and saves the collection
// when fn succeeds.
func (r *Repository) mutate(ctx context.Context, convID, userID string, fn func(*Conversation) error) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return Conversation{}, err
	}
	conv, ok := all[convID]
	if !ok || conv.UserID != userID {
		return Conversation{}, ErrNotFound
	}
	if err := fn(&conv); err != nil {
		return Conversation{}, err
	}
	all[convID] = conv
	if err := r.save(ctx, all); err != nil {
		return Conversation{}, err
	}
	return conv.clone(), nil
}

// Create starts an empty conversation for userID.
func (r *Repository) Create(ctx context.Context, userID, title string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return Conversation{}, err
	}
	now := r.now()
	conv := Conversation{
		ID:        recordstore.NewID("conv", now),
		UserID:    userID,
		Title:     strings.TrimSpace(title),
		Messages:  []Message{},
		CreatedAt: recordstore.At(now),
		UpdatedAt: recordstore.At(now),
	}
	all[conv.ID] = conv
	if err := r.save(ctx, all); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv.clone(), nil
}

// ListByUser returns the user's conversations, most recently updated first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, 0)
	for _, conv := range all {
		if conv.UserID == userID {
			out = append(out, conv.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt.Time) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt.Time)
	})
	return out, nil
}

// Get returns the conversation when it exists and belongs to userID.
func (r *Repository) Get(ctx context.Context, convID, userID string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return Conversation{}, err
	}
	conv, ok := all[convID]
	if !ok || conv.UserID != userID {
		return Conversation{}, ErrNotFound
	}
	return conv.clone(), nil
}

// AppendMessage adds a message and bumps the conversation's update time.
func (r *Repository) AppendMessage(ctx context.Context, convID, userID string, role Role, content string) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	var msg Message
	_, err := r.mutate(ctx, convID, userID, func(c *Conversation) error {
		now := r.now()
		msg = Message{
			ID:        ulid.Make().String(),
			Role:      role,
			Content:   content,
			Timestamp: now.UnixMilli(),
		}
		c.Messages = append(c.Messages, msg)
		c.UpdatedAt = recordstore.At(now)
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (r *Repository) UpdateTitle(ctx context.Context, convID, userID, title string) error {
	_, err := r.mutate(ctx, convID, userID, func(c *Conversation) error {
		c.Title = strings.TrimSpace(title)
		c.UpdatedAt = recordstore.At(r.now())
		return nil
	})
	return err
}

// Delete removes the conversation and reports whether it existed for userID.
func (r *Repository) Delete(ctx context.Context, convID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	conv, ok := all[convID]
	if !ok || conv.UserID != userID {
		return false, nil
	}
	delete(all, convID)
	if err := r.save(ctx, all); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return true, nil
}

// IsMemorized reports whether extraction already ran for the conversation.
// A missing or foreign conversation is not memorized.
func (r *Repository) IsMemorized(ctx context.Context, convID, userID string) (bool, error) {
	conv, err := r.Get(ctx, convID, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.Memorized, nil
}

// MarkMemorized sets the memorized flag. It never clears it.
func (r *Repository) MarkMemorized(ctx context.Context, convID, userID string) error {
	_, err := r.mutate(ctx, convID, userID, func(c *Conversation) error {
		c.Memorized = true
		return nil
	})
	return err
}
