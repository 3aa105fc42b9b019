package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureWait(t *testing.T) {
	f := newFuture[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.complete(42, nil)
	}()

	val, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if val != 42 {
		t.Fatalf("Expected 42, got: %d", val)
	}
}

func TestFutureWaitContextCancelled(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An unsettled future yields the context error, not a value
	val, err := f.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if val != 0 {
		t.Fatalf("Expected the zero value, got: %d", val)
	}
}

func TestFutureResolved(t *testing.T) {
	boom := errors.New("boom")
	f := resolvedFuture(7, boom)

	select {
	case <-f.Done():
	default:
		t.Fatal("Expected a resolved future to be settled")
	}

	val, err := f.Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the resolution error, got: %v", err)
	}
	if val != 7 {
		t.Fatalf("Expected 7, got: %d", val)
	}
}

func TestFutureCompleteOnce(t *testing.T) {
	f := newFuture[string]()
	f.complete("first", nil)
	f.complete("second", errors.New("late"))

	// The first completion wins; later ones are ignored
	val, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if val != "first" {
		t.Fatalf("Expected first completion to win, got: %q", val)
	}
}

func TestFutureErr(t *testing.T) {
	boom := errors.New("boom")
	f := newFuture[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.complete(0, boom)
	}()

	// Err blocks until the future settles
	if err := f.Err(); !errors.Is(err, boom) {
		t.Fatalf("Expected the completion error, got: %v", err)
	}
}
