package scip

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFuture_SettlesOnce(t *testing.T) {
	f := newFuture[int]("test")
	var calls int
	f.whenSettled(func(int, error) { calls++ })

	if !f.complete(1) {
		t.Fatal("scip:future_test - first settle rejected")
	}
	if f.fail(errors.New("late")) || f.Cancel() {
		t.Error("scip:future_test - future settled twice")
	}
	v, err := f.Result()
	if v != 1 || err != nil {
		t.Errorf("scip:future_test - Result() = %d, %v", v, err)
	}

	f.whenSettled(func(int, error) { calls++ })
	if calls != 2 {
		t.Errorf("scip:future_test - hooks ran %d times, want 2", calls)
	}
}

func TestFuture_AwaitGivesUpWithoutSettling(t *testing.T) {
	f := newFuture[string]("test")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("scip:future_test - Await() = %v, want deadline exceeded", err)
	}
	select {
	case <-f.Done():
		t.Fatal("scip:future_test - Await must not settle the future")
	default:
	}
	if !f.Cancel() {
		t.Error("scip:future_test - Cancel should settle the future")
	}
	if _, err := f.Result(); KindOf(err) != KindCanceled {
		t.Errorf("scip:future_test - Result() error = %v, want canceled", err)
	}
}

func TestFuture_HooksRunBeforeWaitersRelease(t *testing.T) {
	f := newFuture[int]("test")
	var doneDuringHook bool
	f.whenSettled(func(int, error) {
		select {
		case <-f.Done():
			doneDuringHook = true
		default:
		}
	})
	f.complete(7)

	if doneDuringHook {
		t.Error("scip:future_test - Done closed before cleanup hooks ran")
	}
	select {
	case <-f.Done():
	default:
		t.Error("scip:future_test - Done not closed after settle")
	}
}
