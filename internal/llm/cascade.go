package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/medibot/pkg/logging"
)

// ErrNoTiers is returned by a cascade with no configured providers.
var ErrNoTiers = errors.New("llm: no provider tiers configured")

// Tier is one provider in the reply cascade together with the confidence
// its answers are credited with.
type Tier struct {
	Name    string
	Client  Client
	Model   string
	Timeout time.Duration
	// GroundedConfidence applies when retrieved context was supplied.
	GroundedConfidence   float64
	UngroundedConfidence float64
	Reasoning            string
}

// Confidence returns the tier's confidence for a grounded or ungrounded call.
func (t Tier) Confidence(grounded bool) float64 {
	if grounded {
		return t.GroundedConfidence
	}
	return t.UngroundedConfidence
}

// LatencyObserver records per-tier call latency.
type LatencyObserver interface {
	ObserveReplyLatency(tier, status string, d time.Duration)
}

// Cascade tries tiers in order and returns the first successful answer.
// Errors and timeouts demote to the next tier.
type Cascade struct {
	tiers    []Tier
	logger   *logging.Logger
	observer LatencyObserver
}

func NewCascade(tiers []Tier, observer LatencyObserver, logger *logging.Logger) *Cascade {
	if logger == nil {
		logger = logging.Default()
	}
	kept := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Client != nil {
			kept = append(kept, t)
		}
	}
	return &Cascade{tiers: kept, logger: logger, observer: observer}
}

// Tiers returns the configured tier names in call order.
func (c *Cascade) Tiers() []string {
	names := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		names = append(names, t.Name)
	}
	return names
}

func (c *Cascade) Complete(ctx context.Context, req Request) (Response, Tier, error) {
	if c == nil || len(c.tiers) == 0 {
		return Response{}, Tier{}, ErrNoTiers
	}

	var lastErr error
	for _, tier := range c.tiers {
		resp, err := c.call(ctx, tier, req)
		if err == nil {
			return resp, tier, nil
		}
		lastErr = err
		c.logger.Warn("llm tier failed, trying next", "tier", tier.Name, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return Response{}, Tier{}, fmt.Errorf("llm: all tiers failed: %w", lastErr)
}

func (c *Cascade) call(ctx context.Context, tier Tier, req Request) (Response, error) {
	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}
	req.Model = tier.Model

	start := time.Now()
	resp, err := tier.Client.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if c.observer != nil {
		c.observer.ObserveReplyLatency(tier.Name, status, time.Since(start))
	}
	return resp, err
}

// LazyClient defers building a provider client until its first call and
// reuses it afterwards.
type LazyClient struct {
	build func() (Client, error)
}

func NewLazyClient(build func() (Client, error)) *LazyClient {
	return &LazyClient{build: sync.OnceValues(build)}
}

func (l *LazyClient) Complete(ctx context.Context, req Request) (Response, error) {
	client, err := l.build()
	if err != nil {
		return Response{}, fmt.Errorf("llm: client unavailable: %w", err)
	}
	return client.Complete(ctx, req)
}
