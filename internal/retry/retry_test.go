package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"sim-chatter/internal/logging"
)

type recordedSleeps struct{ delays []time.Duration }

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestExecutor(p Policy, r *recordedSleeps) *Executor {
	return New(p,
		WithSleep(r.sleep),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
		WithLogger(logging.Discard()),
	)
}

func TestDo_AlwaysFailingMakesExactlyMaxAttempts(t *testing.T) {
	r := &recordedSleeps{}
	e := newTestExecutor(DefaultPolicy(), r)

	calls := 0
	_, rerr := Do(context.Background(), e, "send", func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	if rerr == nil {
		t.Fatal("expected error result")
	}
	if calls != 50 {
		t.Fatalf("want 50 calls, got %d", calls)
	}
	if rerr.Attempts != 50 || rerr.Err.Error() != "boom" {
		t.Fatalf("unexpected error result: %+v", rerr)
	}
	if len(r.delays) != 49 {
		t.Fatalf("want 49 sleeps between 50 attempts, got %d", len(r.delays))
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	r := &recordedSleeps{}
	e := newTestExecutor(DefaultPolicy(), r)

	calls := 0
	v, rerr := Do(context.Background(), e, "send", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if rerr != nil {
		t.Fatalf("unexpected error: %v", rerr)
	}
	if v != 42 || calls != 3 {
		t.Fatalf("v=%d calls=%d", v, calls)
	}
	if len(r.delays) != 2 || r.delays[0] != time.Second || r.delays[1] != 1500*time.Millisecond {
		t.Fatalf("unexpected delays: %v", r.delays)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	r := &recordedSleeps{}
	e := newTestExecutor(DefaultPolicy(), r)
	sentinel := errors.New("bad request")

	calls := 0
	_, rerr := Do(context.Background(), e, "send", func(ctx context.Context) (struct{}, error) {
		calls++
		return struct{}{}, Permanent(sentinel)
	})
	if rerr == nil || calls != 1 || rerr.Attempts != 1 {
		t.Fatalf("calls=%d err=%v", calls, rerr)
	}
	if !errors.Is(rerr, sentinel) {
		t.Fatalf("sentinel not reachable through error chain: %v", rerr)
	}
}

func TestDo_ContextCancelledStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(DefaultPolicy(),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
		WithLogger(logging.Discard()),
	)

	calls := 0
	_, rerr := Do(ctx, e, "send", func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("down")
	})
	if rerr == nil || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, rerr)
	}
}

func TestDo_RecoversPanics(t *testing.T) {
	r := &recordedSleeps{}
	e := newTestExecutor(Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, r)

	_, rerr := Do(context.Background(), e, "send", func(ctx context.Context) (string, error) {
		panic("nil handle")
	})
	if rerr == nil || rerr.Attempts != 2 {
		t.Fatalf("unexpected result: %v", rerr)
	}
}

func TestPolicyDelay_CapsAtMax(t *testing.T) {
	p := DefaultPolicy()
	if d := p.Delay(0, 0); d != time.Second {
		t.Fatalf("delay(0) = %v", d)
	}
	if d := p.Delay(2, 250*time.Millisecond); d != 2500*time.Millisecond {
		t.Fatalf("delay(2) = %v", d)
	}
	if d := p.Delay(40, 0); d != 30*time.Second {
		t.Fatalf("delay(40) = %v", d)
	}
}

func TestRandomJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := randomJitter(time.Second)
		if j < 0 || j >= time.Second {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
	if randomJitter(0) != 0 {
		t.Fatal("zero max must yield zero jitter")
	}
}
