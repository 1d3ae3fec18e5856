package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{Retries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &RateLimitError{Provider: "openai"}, true},
		{"unavailable", &ProviderUnavailableError{Provider: "openai", StatusCode: 503}, true},
		{"wrapped unavailable", fmt.Errorf("chat: %w", &ProviderUnavailableError{Provider: "zai"}), true},
		{"auth", &AuthenticationError{Provider: "claude", StatusCode: 401}, false},
		{"malformed", &MalformedResponseError{Provider: "gemini"}, false},
		{"request", &RequestError{Provider: "openai", StatusCode: 400}, false},
		{"cancelled", &ProviderUnavailableError{Provider: "openai", Err: context.Canceled}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := NewRetryPolicy(3)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, DefaultInitialBackoff},
		{1, DefaultInitialBackoff * 2},
		{2, DefaultInitialBackoff * 4},
		{10, DefaultMaxBackoff},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ProviderUnavailableError{Provider: "openai", StatusCode: 502}
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("Retry() = %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, &AuthenticationError{Provider: "claude", StatusCode: 401}
	})

	var ae *AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("Retry() error = %v, want *AuthenticationError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ZeroRetriesIsSingleAttempt(t *testing.T) {
	calls := 0
	want := &RateLimitError{Provider: "gemini"}
	_, err := Retry(context.Background(), fastPolicy(0), func(ctx context.Context) (int, error) {
		calls++
		return 0, want
	})

	if err != want {
		t.Errorf("Retry() error = %v, want the original error unwrapped", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 0, &ProviderUnavailableError{Provider: "zai", StatusCode: 500}
	})

	var pu *ProviderUnavailableError
	if !errors.As(err, &pu) {
		t.Fatalf("Retry() error = %v, want wrapped *ProviderUnavailableError", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	p := fastPolicy(1)
	if got := p.wait(0, &RateLimitError{RetryAfter: 20 * time.Millisecond}); got != 20*time.Millisecond {
		t.Errorf("wait() = %v, want Retry-After 20ms", got)
	}
	if got := p.wait(0, &RateLimitError{}); got != time.Millisecond {
		t.Errorf("wait() = %v, want backoff 1ms", got)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
