package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/saba/internal/recordstore"
)

// Repository owns the memories collection (user id -> list of memories).
// Each operation loads the whole collection, mutates it and saves it back.
type Repository struct {
	store recordstore.Store
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

func NewRepository(store recordstore.Store, log *slog.Logger) *Repository {
	return &Repository{store: store, log: log, now: time.Now}
}

func (r *Repository) load(ctx context.Context) (map[string][]Memory, error) {
	return recordstore.LoadCollection[[]Memory](ctx, r.store, recordstore.KindMemories, r.log)
}

func (r *Repository) save(ctx context.Context, all map[string][]Memory) error {
	return recordstore.SaveCollection(ctx, r.store, recordstore.KindMemories, all)
}

// List returns the user's memories, newest first.
func (r *Repository) List(ctx context.Context, userID string) ([]Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]Memory(nil), all[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	return out, nil
}

// AddUnique stores every candidate whose normalized form is not already held
// by the user and was not accepted earlier in the same batch. Rejected
// candidates are dropped silently. It returns the records it added.
func (r *Repository) AddUnique(ctx context.Context, userID string, candidates []string, meta Meta) ([]Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	existing := all[userID]
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, m := range existing {
		seen[Normalize(m.Content)] = struct{}{}
	}

	meta = meta.withDefaults()
	now := r.now()
	added := make([]Memory, 0, len(candidates))
	for _, c := range candidates {
		key := Normalize(c)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		added = append(added, Memory{
			ID:         recordstore.NewID("mem", now),
			UserID:     userID,
			Content:    strings.TrimSpace(c),
			Type:       meta.Type,
			Importance: meta.Importance,
			CreatedAt:  recordstore.At(now),
			UpdatedAt:  recordstore.At(now),
			Source:     meta.Source,
			Confidence: meta.Confidence,
		})
	}
	if len(added) == 0 {
		return added, nil
	}

	all[userID] = append(existing, added...)
	if err := r.save(ctx, all); err != nil {
		return nil, err
	}
	if r.log != nil {
		r.log.Debug("memories added", "user_id", userID, "added", len(added), "dropped", len(candidates)-len(added))
	}
	return added, nil
}

// Add validates memories submitted by a client and stores them through
// AddUnique. Duplicates are dropped, not reported as errors.
func (r *Repository) Add(ctx context.Context, userID string, in Input) ([]Memory, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return r.AddUnique(ctx, userID, in.candidates(), Meta{
		Type:       in.Type,
		Importance: in.Importance,
		Source:     in.Source,
		Confidence: in.Confidence,
	})
}

// Update applies patch to one memory. New content that collides with any
// other memory of the user is reported as a duplicate and nothing in the
// patch is applied.
func (r *Repository) Update(ctx context.Context, userID, memoryID string, patch Patch) (UpdateResult, error) {
	if err := patch.validate(); err != nil {
		return UpdateResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	list := all[userID]
	idx := -1
	for i := range list {
		if list[i].ID == memoryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return UpdateResult{}, nil
	}

	if patch.Content != nil {
		key := Normalize(*patch.Content)
		for i := range list {
			if i != idx && Normalize(list[i].Content) == key {
				return UpdateResult{Duplicate: true}, nil
			}
		}
	}

	m := list[idx]
	if patch.Content != nil {
		m.Content = strings.TrimSpace(*patch.Content)
	}
	if patch.Type != nil {
		m.Type = *patch.Type
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	if patch.Source != nil {
		m.Source = *patch.Source
	}
	if patch.Confidence != nil {
		c := *patch.Confidence
		m.Confidence = &c
	}
	m.UpdatedAt = recordstore.At(r.now())
	list[idx] = m
	all[userID] = list

	if err := r.save(ctx, all); err != nil {
		return UpdateResult{}, fmt.Errorf("update memory: %w", err)
	}
	return UpdateResult{OK: true, Memory: &m}, nil
}

// Delete removes a memory and reports whether anything was removed. Deleting
// a missing memory is a successful no-op.
func (r *Repository) Delete(ctx context.Context, userID, memoryID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	list := all[userID]
	kept := make([]Memory, 0, len(list))
	for _, m := range list {
		if m.ID != memoryID {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	all[userID] = kept
	if err := r.save(ctx, all); err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	return true, nil
}
