package buffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTimers struct {
	mu      sync.Mutex
	fns     []func()
	delays  []time.Duration
	stopped []bool
}

type fakeTimer struct {
	timers *fakeTimers
	idx    int
}

func (f *fakeTimers) after(d time.Duration, fn func()) timerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
	f.delays = append(f.delays, d)
	f.stopped = append(f.stopped, false)
	return &fakeTimer{timers: f, idx: len(f.fns) - 1}
}

func (t *fakeTimer) Stop() bool {
	t.timers.mu.Lock()
	defer t.timers.mu.Unlock()
	was := !t.timers.stopped[t.idx]
	t.timers.stopped[t.idx] = true
	return was
}

// fireAll runs every callback, including stopped ones, to model timers
// that fired while being stopped.
func (f *fakeTimers) fireAll() {
	f.mu.Lock()
	fns := append([]func(){}, f.fns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type flushRecorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *flushRecorder) flush(_ context.Context, b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *flushRecorder) all() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

type failingListStore struct {
	appendErr error
	takeErr   error
	values    []string
}

func (s *failingListStore) Append(_ context.Context, _, value string, _ time.Duration) (int64, error) {
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	s.values = append(s.values, value)
	return int64(len(s.values)), nil
}

func (s *failingListStore) Take(context.Context, string) ([]string, error) {
	if s.takeErr != nil {
		return nil, s.takeErr
	}
	out := s.values
	s.values = nil
	return out, nil
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	t.Parallel()

	_, buf := newRedisBuffer(t)
	timers := &fakeTimers{}
	rec := &flushRecorder{}
	d, err := NewDebouncer(buf, rec.flush, withAfterFunc(timers.after))
	if err != nil {
		t.Fatalf("NewDebouncer() error = %v", err)
	}

	ctx := context.Background()
	for _, msg := range []string{"Oi", "Vocês trabalham com X?", "Qual o valor?"} {
		if err := d.Submit(ctx, Batch{TenantID: "T", LeadID: "u1", Channel: "whatsapp", AgentID: "A", Text: msg}); err != nil {
			t.Fatalf("Submit(%q) error = %v", msg, err)
		}
	}

	if len(timers.delays) != 3 || timers.delays[0] != ExtendedDelay || timers.delays[2] != DefaultDelay {
		t.Fatalf("armed delays = %v", timers.delays)
	}
	if !timers.stopped[0] || !timers.stopped[1] || timers.stopped[2] {
		t.Fatalf("stopped = %v, want only the last timer armed", timers.stopped)
	}
	if !d.Pending("T", "u1") {
		t.Fatal("Pending() = false before the window elapsed")
	}

	timers.fireAll()

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("flushes = %d, want 1", len(got))
	}
	if got[0].Text != "Oi Vocês trabalham com X? Qual o valor?" {
		t.Fatalf("flushed text = %q", got[0].Text)
	}
	if got[0].Channel != "whatsapp" || got[0].AgentID != "A" {
		t.Fatalf("flushed batch = %+v, want channel and agent carried", got[0])
	}
	if d.Pending("T", "u1") {
		t.Fatal("Pending() = true after flush")
	}
}

func TestDebouncerFlushesImmediatelyWhenBufferFails(t *testing.T) {
	t.Parallel()

	buf, err := NewMessageBuffer(&failingListStore{appendErr: errors.New("down")}, Policy{})
	if err != nil {
		t.Fatalf("NewMessageBuffer() error = %v", err)
	}
	timers := &fakeTimers{}
	rec := &flushRecorder{}
	d, _ := NewDebouncer(buf, rec.flush, withAfterFunc(timers.after))

	if err := d.Submit(context.Background(), Batch{TenantID: "T", LeadID: "u1", Text: "Oi"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got := rec.all()
	if len(got) != 1 || got[0].Text != "Oi" {
		t.Fatalf("flushes = %+v, want immediate flush of the message", got)
	}
	if len(timers.fns) != 0 {
		t.Fatalf("timers armed = %d, want 0", len(timers.fns))
	}
}

func TestDebouncerUsesLastMessageWhenDrainFails(t *testing.T) {
	t.Parallel()

	buf, _ := NewMessageBuffer(&failingListStore{takeErr: errors.New("timeout")}, Policy{})
	timers := &fakeTimers{}
	rec := &flushRecorder{}
	d, _ := NewDebouncer(buf, rec.flush, withAfterFunc(timers.after))

	ctx := context.Background()
	_ = d.Submit(ctx, Batch{TenantID: "T", LeadID: "u1", Text: "primeira"})
	_ = d.Submit(ctx, Batch{TenantID: "T", LeadID: "u1", Text: "segunda"})
	timers.fireAll()

	got := rec.all()
	if len(got) != 1 || got[0].Text != "segunda" {
		t.Fatalf("flushes = %+v, want last message", got)
	}
}

func TestDebouncerCloseFlushesOpenWindows(t *testing.T) {
	t.Parallel()

	_, buf := newRedisBuffer(t)
	timers := &fakeTimers{}
	rec := &flushRecorder{}
	d, _ := NewDebouncer(buf, rec.flush, withAfterFunc(timers.after))

	ctx := context.Background()
	_ = d.Submit(ctx, Batch{TenantID: "T", LeadID: "u1", Text: "Oi"})
	_ = d.Submit(ctx, Batch{TenantID: "T", LeadID: "u2", Text: "Olá"})

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := rec.all(); len(got) != 2 {
		t.Fatalf("flushes on close = %d, want 2", len(got))
	}

	timers.fireAll()
	if got := rec.all(); len(got) != 2 {
		t.Fatalf("flushes after late timers = %d, want 2", len(got))
	}
	if err := d.Submit(ctx, Batch{TenantID: "T", LeadID: "u1", Text: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit() after Close error = %v, want ErrClosed", err)
	}
}

func TestDebouncerRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, buf := newRedisBuffer(t)
	d, _ := NewDebouncer(buf, (&flushRecorder{}).flush)
	if err := d.Submit(context.Background(), Batch{LeadID: "u1", Text: "oi"}); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("Submit() error = %v, want ErrEmptyKey", err)
	}
}
