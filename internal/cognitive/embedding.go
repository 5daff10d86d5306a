// Package cognitive builds the 400-dimensional cognitive vector for a piece
// of content: a pluggable semantic embedding concatenated with 16
// rule-derived dimensions, then fused by CognitiveEncoder (§4.1-4.3).
package cognitive

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cogmem/engram/internal/memerr"
)

// EmbeddingProvider produces semantic embeddings for text. Implementations
// are expected to be remote or otherwise fallible; callers get a circuit
// breaker and rate limiter for free via NewGuardedProvider.
type EmbeddingProvider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch returns one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	// Dimension reports the provider's fixed output width.
	Dimension() int
}

// GuardedProvider wraps an EmbeddingProvider with a circuit breaker (so a
// failing embedding backend fails fast instead of stalling ingestion) and a
// token-bucket limiter over every Embed and EmbedBatch call, mirroring the breaker/limiter
// pairing the teacher applies to its LLM provider calls.
type GuardedProvider struct {
	inner   EmbeddingProvider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedProvider wraps inner. ratePerSecond bounds provider calls (each
// Embed and each EmbedBatch takes one token); a ratePerSecond <= 0 disables
// limiting.
func NewGuardedProvider(inner EmbeddingProvider, ratePerSecond float64) *GuardedProvider {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &GuardedProvider{inner: inner, breaker: breaker, limiter: limiter}
}

func (g *GuardedProvider) Dimension() int { return g.inner.Dimension() }

func (g *GuardedProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, memerr.Wrap(memerr.Timeout, "rate limiter wait", err)
		}
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.StoreUnavailable, "embedding provider unavailable", err)
	}
	return result.([]float64), nil
}

func (g *GuardedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, memerr.Wrap(memerr.Timeout, "rate limiter wait", err)
		}
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.StoreUnavailable, "embedding provider unavailable", err)
	}
	return result.([][]float64), nil
}

// LocalProvider is a deterministic, dependency-free EmbeddingProvider used
// as the default: a hashed bag-of-tokens projection into a fixed-width
// vector, normalized to unit length. It exists so the engine runs without
// requiring an external model, matching the spec's pluggable-boundary
// design (§4.1) while giving every component something real to exercise.
type LocalProvider struct {
	dim int

	mu    sync.Mutex
	cache map[string][]float64
}

func NewLocalProvider(dim int) *LocalProvider {
	return &LocalProvider{dim: dim, cache: make(map[string][]float64)}
}

func (l *LocalProvider) Dimension() int { return l.dim }

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	l.mu.Lock()
	if v, ok := l.cache[text]; ok {
		l.mu.Unlock()
		return v, nil
	}
	l.mu.Unlock()

	v := hashEmbed(text, l.dim)
	l.mu.Lock()
	l.cache[text] = v
	l.mu.Unlock()
	return v, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
