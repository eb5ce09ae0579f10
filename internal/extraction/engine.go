// Package extraction turns a conversation into stored memories, at most once
// per conversation.
package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/llm"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/prompts"
)

// Strategies reported in Result.Strategy.
const (
	StrategyGenerative = "generative"
	StrategyHeuristic  = "heuristic"
	StrategySkipped    = "skipped"
)

// ConversationStore is the part of the conversation repository extraction
// needs.
type ConversationStore interface {
	IsMemorized(ctx context.Context, convID, userID string) (bool, error)
	Get(ctx context.Context, convID, userID string) (conversations.Conversation, error)
	MarkMemorized(ctx context.Context, convID, userID string) error
}

// MemoryStore accepts candidate facts and drops duplicates.
type MemoryStore interface {
	AddUnique(ctx context.Context, userID string, candidates []string, meta memory.Meta) ([]memory.Memory, error)
}

// Result of one Extract call. Skipped means extraction already ran for the
// conversation and nothing was done.
type Result struct {
	Added    []memory.Memory
	Skipped  bool
	Strategy string
}

type Engine struct {
	conversations ConversationStore
	memories      MemoryStore
	adapter       llm.Adapter
	prompts       prompts.Set
	log           *slog.Logger
	metrics       *observability.Metrics
}

// NewEngine builds an engine. A nil adapter means the generative strategy
// is unavailable and the heuristic strategy is always used.
func NewEngine(convs ConversationStore, mems MemoryStore, adapter llm.Adapter, p prompts.Set, log *slog.Logger, metrics *observability.Metrics) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		conversations: convs,
		memories:      mems,
		adapter:       adapter,
		prompts:       p,
		log:           log,
		metrics:       metrics,
	}
}

// Extract runs fact extraction for a conversation the user owns. A second
// call for the same conversation returns Skipped without touching memories.
// A missing conversation is conversations.ErrNotFound. Generative failures
// never reach the caller; the heuristic strategy is used instead.
func (e *Engine) Extract(ctx context.Context, convID, userID string) (Result, error) {
	memorized, err := e.conversations.IsMemorized(ctx, convID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("check memorized: %w", err)
	}
	if memorized {
		e.metrics.ObserveExtraction(StrategySkipped, 0, 0)
		return Result{Skipped: true, Strategy: StrategySkipped, Added: []memory.Memory{}}, nil
	}

	conv, err := e.conversations.Get(ctx, convID, userID)
	if err != nil {
		return Result{}, err
	}

	candidates, strategy := e.candidates(ctx, conv)

	added, err := e.memories.AddUnique(ctx, userID, candidates, memory.Meta{
		Type:       memory.TypePersonal,
		Importance: memory.ImportanceMedium,
		Source:     "conversation:" + convID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("store memories: %w", err)
	}

	if err := e.conversations.MarkMemorized(ctx, convID, userID); err != nil {
		return Result{}, fmt.Errorf("mark memorized: %w", err)
	}

	e.metrics.ObserveExtraction(strategy, len(added), len(candidates)-len(added))
	e.log.Info("extraction finished",
		"conversation_id", convID,
		"strategy", strategy,
		"candidates", len(candidates),
		"added", len(added),
	)
	return Result{Added: added, Strategy: strategy}, nil
}

func (e *Engine) candidates(ctx context.Context, conv conversations.Conversation) ([]string, string) {
	if len(conv.Messages) == 0 {
		return nil, StrategyHeuristic
	}
	if e.adapter != nil {
		text, err := e.adapter.Generate(ctx, llm.Request{
			Purpose: "extraction",
			Prompt:  e.prompts.Extraction + "\n\n" + Transcript(conv.Messages),
		})
		if err == nil {
			if items := ParseBullets(text); len(items) > 0 {
				return items, StrategyGenerative
			}
			err = fmt.Errorf("%w: no bullet items in response", llm.ErrUpstreamUnavailable)
		}
		e.log.Warn("generative extraction failed, using heuristics", "conversation_id", conv.ID, "err", err)
	}
	return Heuristic(conv.Messages), StrategyHeuristic
}
