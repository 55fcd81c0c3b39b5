package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesRetryableFailure(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errTransient := errors.New("rate limited")
	err := exec.Execute(context.Background(), "model.analyze", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTransient),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteSurfacesNonRetryableImmediately(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errFatal := errors.New("invalid api key")
	err := exec.Execute(context.Background(), "model.analyze", func(context.Context) error {
		attempts++
		return errFatal
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-retryable failures must not be retried, got %d attempts", attempts)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errTransient := errors.New("timeout")
	err := exec.Execute(context.Background(), "model.analyze", func(context.Context) error {
		attempts++
		return errTransient
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last error after exhaustion, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected the full attempt budget, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterRecordedFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errDown := errors.New("service down")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
			return errDown
		}, classifier)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected failure on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		t.Fatal("open circuit must not invoke the operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatal("IsCircuitOpen must recognize the open state")
	}
}

func TestExecuteBreakersAreIsolatedPerOperation(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errDown := errors.New("down")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
	for i := 0; i < 2; i++ {
		_ = exec.Execute(context.Background(), "anthropic.analyze", func(context.Context) error {
			return errDown
		}, classifier)
	}

	// A different operation has its own breaker and still executes.
	err := exec.Execute(context.Background(), "openai.entities", func(context.Context) error {
		return nil
	}, classifier)
	if err != nil {
		t.Fatalf("unrelated operation must not share the open breaker: %v", err)
	}
}

func TestExecuteNilCallbackRejected(t *testing.T) {
	exec := NewExecutor(fastConfig())
	if err := exec.Execute(context.Background(), "op", nil, nil); err == nil {
		t.Fatal("nil callback must be rejected")
	}
}
