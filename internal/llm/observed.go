package llm

import (
	"context"
	"time"

	"github.com/ent0n29/saba/internal/observability"
)

// ObservedAdapter records call outcomes and latency.
type ObservedAdapter struct {
	next    Adapter
	metrics *observability.Metrics
	now     func() time.Time
}

func NewObservedAdapter(next Adapter, metrics *observability.Metrics) *ObservedAdapter {
	return &ObservedAdapter{next: next, metrics: metrics, now: time.Now}
}

func (a *ObservedAdapter) Generate(ctx context.Context, req Request) (string, error) {
	start := a.now()
	text, err := a.next.Generate(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = "unspecified"
	}
	a.metrics.ObserveLLMCall(purpose, outcome, a.now().Sub(start))
	return text, err
}
