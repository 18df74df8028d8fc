package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/legaldoc/engine/internal/utils"
)

// LLMConfig tunes the retry and throttling behavior around the backend.
type LLMConfig struct {
	// RequestTimeout bounds each individual attempt.
	RequestTimeout time.Duration
	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int
	// BackoffBase doubles per retry for transient upstream failures.
	BackoffBase time.Duration
	// RateLimitCooldown is the fixed wait after a 429, independent of the
	// exponential schedule.
	RateLimitCooldown time.Duration
	// InputCharCap truncates completion prompts before sending.
	InputCharCap int
	// RequestsPerMinute caps outbound attempts across all callers.
	RequestsPerMinute int
}

// LLMClient wraps a CompletionBackend with bounded retries, a shared rate
// limiter, per-attempt timeouts, and error classification. It is safe for
// concurrent use.
type LLMClient struct {
	backend CompletionBackend
	limiter *rate.Limiter
	cfg     LLMConfig
	log     *zap.Logger
}

func NewLLMClient(backend CompletionBackend, cfg LLMConfig, log *zap.Logger) *LLMClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &LLMClient{
		backend: backend,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log,
	}
}

// Complete sends a prompt and returns the generated text. Prompts above
// InputCharCap are truncated, never rejected.
func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.InputCharCap > 0 {
		prompt = utils.TruncateRunes(prompt, c.cfg.InputCharCap)
	}

	var out string
	err := c.withRetry(ctx, "complete", func(attemptCtx context.Context) error {
		var err error
		out, err = c.backend.Complete(attemptCtx, prompt)
		return err
	})
	return out, err
}

// Embed returns the embedding vector for one text.
func (c *LLMClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := c.withRetry(ctx, "embed", func(attemptCtx context.Context) error {
		var err error
		out, err = c.backend.Embed(attemptCtx, text)
		return err
	})
	return out, err
}

// EmbedBatch returns one embedding per input text, in order.
func (c *LLMClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := c.withRetry(ctx, "embed_batch", func(attemptCtx context.Context) error {
		var err error
		out, err = c.backend.EmbedBatch(attemptCtx, texts)
		return err
	})
	return out, err
}

// withRetry runs fn up to MaxAttempts times. Rate-limit failures wait the
// fixed cooldown; other transient failures follow the exponential schedule.
// Terminal failures and context cancellation stop immediately.
func (c *LLMClient) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastClass error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.cfg.BackoffBase * time.Duration(1<<(attempt-2))
			if errors.Is(lastClass, ErrRateLimited) {
				wait = c.cfg.RateLimitCooldown
			}
			c.log.Debug("retrying llm operation",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return interrupted(ctx)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return interrupted(ctx)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}

		// The parent context ending is the caller's doing, not an upstream
		// fault worth retrying.
		if ctx.Err() != nil {
			return interrupted(ctx)
		}

		class, retryable := classify(err)
		lastClass = class
		c.log.Warn("llm attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Bool("retryable", retryable),
			zap.Error(err))
		if !retryable {
			return fmt.Errorf("%w: %s", class, userMessage(class))
		}
	}

	return fmt.Errorf("%w: %s", lastClass, userMessage(lastClass))
}

// interrupted reports the parent context ending. A caller-initiated cancel is
// surfaced as context.Canceled; only a deadline reads as a timeout.
func interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("request canceled: %w", context.Canceled)
	}
	return fmt.Errorf("%w: %s", ErrUpstreamTimeout, userMessage(ErrUpstreamTimeout))
}

// classify maps a backend error to a failure class and whether another
// attempt could help.
func classify(err error) (class error, retryable bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout, true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return ErrRateLimited, true
		case apiErr.Code >= 500:
			return ErrUpstreamError, true
		default:
			// Remaining 4xx codes are request faults; retrying resends the
			// same bad request.
			return ErrUpstreamError, false
		}
	}

	// Network-level and unrecognized errors are assumed transient.
	return ErrUpstreamError, true
}

// userMessage is the only text about an LLM failure that reaches end users.
func userMessage(class error) string {
	switch {
	case errors.Is(class, ErrRateLimited):
		return "the language model is receiving too many requests, please retry shortly"
	case errors.Is(class, ErrUpstreamTimeout):
		return "the language model took too long to respond"
	default:
		return "the language model could not process the request"
	}
}
