package answer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedClient returns its responses in order, one per Complete call.
type scriptedClient struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	answer string
	err    error
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.calls >= len(c.responses) {
		return "", errors.New("unexpected extra call")
	}
	r := c.responses[c.calls]
	c.calls++
	return r.answer, r.err
}

func (c *scriptedClient) ModelName() string { return "scripted" }

func noSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if slept != nil {
			*slept = append(*slept, d)
		}
		return nil
	}
}

func TestAnswerSucceedsFirstAttempt(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{answer: "The cat sat on the mat."},
	}}
	engine := NewEngine(client, WithSleep(noSleep(nil)))

	got, err := engine.Answer(context.Background(), "What did the cat do?", "The cat sat.")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if got != "The cat sat on the mat." {
		t.Errorf("got %q", got)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 call, got %d", client.calls)
	}
}

func TestAnswerRetriesTimeoutThenSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: fmt.Errorf("completion: %w", ErrTimeout)},
		{err: fmt.Errorf("completion: %w", ErrTimeout)},
		{answer: "Recovered answer."},
	}}
	var slept []time.Duration
	engine := NewEngine(client, WithSleep(noSleep(&slept)))

	got, err := engine.Answer(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("Answer failed after retries: %v", err)
	}
	if got != "Recovered answer." {
		t.Errorf("got %q", got)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestAnswerExhaustsRetries(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: ErrRateLimited},
		{err: ErrRateLimited},
		{err: ErrRateLimited},
	}}
	engine := NewEngine(client, WithSleep(noSleep(nil)))

	_, err := engine.Answer(context.Background(), "q", "ctx")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
}

func TestAnswerDoesNotRetryNonTransient(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: errors.New("invalid request: prompt too long")},
	}}
	engine := NewEngine(client, WithSleep(noSleep(nil)))

	_, err := engine.Answer(context.Background(), "q", "ctx")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) {
		t.Errorf("validation error classified as transient: %v", err)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 call, got %d", client.calls)
	}
}

func TestAnswerEmptyResponseIsFailure(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{answer: "   \n\t "},
	}}
	engine := NewEngine(client, WithSleep(noSleep(nil)))

	_, err := engine.Answer(context.Background(), "q", "ctx")
	if !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("empty answer should not be retried, got %d calls", client.calls)
	}
}

func TestAnswerBackoffCap(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: ErrTimeout},
		{err: ErrTimeout},
		{err: ErrTimeout},
		{err: ErrTimeout},
		{answer: "ok"},
	}}
	var slept []time.Duration
	engine := NewEngine(client,
		WithSleep(noSleep(&slept)),
		WithRetry(5, 2*time.Second, 10*time.Second),
	)

	if _, err := engine.Answer(context.Background(), "q", "ctx"); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestAnswerCanceledDuringBackoff(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: ErrTimeout},
		{answer: "never reached"},
	}}
	engine := NewEngine(client, WithSleep(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}))

	_, err := engine.Answer(context.Background(), "q", "ctx")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 call, got %d", client.calls)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"already rate limited", ErrRateLimited, ErrRateLimited},
		{"already timeout", ErrTimeout, ErrTimeout},
		{"rate limit substring", errors.New("upstream rate limit exceeded"), ErrRateLimited},
		{"too many requests", errors.New("429 Too Many Requests"), ErrRateLimited},
		{"timeout substring", errors.New("request timeout"), ErrTimeout},
		{"timed out", errors.New("operation timed out"), ErrTimeout},
		{"deadline exceeded", errors.New("context deadline exceeded"), ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyUnknownPassesThrough(t *testing.T) {
	orig := errors.New("model returned garbage")
	got := Classify(orig)
	if !errors.Is(got, orig) {
		t.Errorf("unknown error should pass through, got %v", got)
	}
	if errors.Is(got, ErrRateLimited) || errors.Is(got, ErrTimeout) {
		t.Errorf("unknown error wrongly classified: %v", got)
	}
}
