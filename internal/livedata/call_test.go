package livedata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCall_ExecuteReturnsResult(t *testing.T) {
	call := NewCall(context.Background(), func(ctx context.Context) Result[int] {
		return Result[int]{Data: 42}
	})

	res := call.Execute()
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Data != 42 {
		t.Fatalf("expected 42, got %d", res.Data)
	}
}

func TestCall_EnqueueDeliversSameResultAsExecute(t *testing.T) {
	mk := func() *Call[string] {
		return NewCall(context.Background(), func(ctx context.Context) Result[string] {
			return Result[string]{Data: "ok"}
		})
	}

	sync := mk().Execute()

	done := make(chan Result[string], 1)
	mk().Enqueue(func(r Result[string]) { done <- r })

	select {
	case async := <-done:
		if async != sync {
			t.Fatalf("enqueue result %+v differs from execute result %+v", async, sync)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue callback never fired")
	}
}

func TestCall_CancelBeforeExecutePreventsRun(t *testing.T) {
	var ran atomic.Bool
	call := NewCall(context.Background(), func(ctx context.Context) Result[int] {
		ran.Store(true)
		return Result[int]{Data: 1}
	})

	call.Cancel()
	res := call.Execute()

	if ran.Load() {
		t.Fatal("runnable should not run after cancel")
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
}

func TestCall_CancelBeforeEnqueueSuppressesCallback(t *testing.T) {
	fired := make(chan struct{}, 1)
	call := NewCall(context.Background(), func(ctx context.Context) Result[int] {
		return Result[int]{Data: 1}
	})

	call.Cancel()
	call.Enqueue(func(Result[int]) { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("callback fired after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCall_CancelAfterCompletionIsNoop(t *testing.T) {
	call := NewCall(context.Background(), func(ctx context.Context) Result[int] {
		return Result[int]{Data: 5}
	})

	res := call.Execute()
	call.Cancel()

	if res.Err != nil || res.Data != 5 {
		t.Fatalf("completed result should be unaffected by cancel, got %+v", res)
	}
}

func TestCall_RemoteFailureSurfacesThroughResult(t *testing.T) {
	boom := errors.New("remote failure")
	call := NewCall(context.Background(), func(ctx context.Context) Result[int] {
		return Result[int]{Err: boom}
	})

	if res := call.Execute(); !errors.Is(res.Err, boom) {
		t.Fatalf("expected wrapped remote failure, got %v", res.Err)
	}
}

func TestCall_ParentCancellationPropagatesToContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	call := NewCall(parent, func(ctx context.Context) Result[int] {
		return Result[int]{Err: ctx.Err()}
	})

	cancel()
	res := call.Execute()

	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected canceled context inside runnable, got %v", res.Err)
	}
}
