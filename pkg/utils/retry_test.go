package utils

import (
	"context"
	"errors"
	"testing"
)

func TestRetry_StopsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, 0, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	want := errors.New("still broken")
	calls := 0
	err := Retry(context.Background(), 3, 0, func(ctx context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetry_HonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, 0, func(ctx context.Context) error {
		t.Fatalf("fn should not run with canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
