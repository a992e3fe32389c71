package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// answerPrompt instructs the model to stay inside the retrieved excerpts.
const answerPrompt = `Answer the question using only the document excerpts below. Be concise and factual. If the excerpts do not contain the answer, say so.

Excerpts:
%s

Question: %s

Answer:`

// Engine wraps answer generation with bounded retry and exponential backoff.
// Only transient failures (rate limiting, timeouts) are retried; validation
// and model errors surface immediately. The engine never holds any index
// lock: it runs strictly after the document's index is ready.
type Engine struct {
	client      Client
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for retry events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = sleep }
}

// WithRetry overrides the retry policy: attempts, starting backoff, and cap.
func WithRetry(maxAttempts int, base, cap time.Duration) EngineOption {
	return func(e *Engine) {
		e.maxAttempts = maxAttempts
		e.backoffBase = base
		e.backoffCap = cap
	}
}

// NewEngine creates an answer engine with the default policy: 3 attempts,
// backoff starting at 2s doubling up to a 10s cap.
func NewEngine(client Client, opts ...EngineOption) *Engine {
	e := &Engine{
		client:      client,
		maxAttempts: 3,
		backoffBase: 2 * time.Second,
		backoffCap:  10 * time.Second,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Answer asks the model the question against the retrieved context and
// returns the raw answer. A successful call whose answer is empty is a
// failure (ErrEmptyAnswer), not an empty success.
func (e *Engine) Answer(ctx context.Context, question, docContext string) (string, error) {
	prompt := fmt.Sprintf(answerPrompt, docContext, question)

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		raw, err := e.client.Complete(ctx, prompt)
		if err == nil {
			answer := strings.TrimSpace(raw)
			if answer == "" {
				return "", ErrEmptyAnswer
			}
			return answer, nil
		}

		lastErr = Classify(err)
		if !isTransient(lastErr) || attempt == e.maxAttempts {
			break
		}
		wait := e.backoff(attempt)
		if e.logger != nil {
			e.logger.Warn("answer attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		}
		if err := e.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// backoff returns the wait before the attempt following attempt n:
// base * 2^(n-1), capped.
func (e *Engine) backoff(attempt int) time.Duration {
	d := e.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.backoffCap {
			return e.backoffCap
		}
	}
	if d > e.backoffCap {
		return e.backoffCap
	}
	return d
}

func isTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// Classify buckets an answer-generation failure by its message. Errors
// already carrying a taxonomy sentinel pass through; otherwise substring
// matching decides, and anything unrecognized stays unclassified.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyAnswer) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
