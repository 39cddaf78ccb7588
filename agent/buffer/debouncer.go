package buffer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type timerHandle interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timerHandle

func realAfterFunc(d time.Duration, f func()) timerHandle {
	return time.AfterFunc(d, f)
}

// Debouncer times debounce windows with in-process timers. Each key holds at
// most one armed timer; a new message stops it and arms a fresh one.
type Debouncer struct {
	buffer *MessageBuffer
	flush  FlushFunc
	after  afterFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pendingWindow
	seq     uint64
	closed  bool
	wg      sync.WaitGroup
}

type pendingWindow struct {
	gen   uint64
	timer timerHandle
	batch Batch
}

var _ Scheduler = (*Debouncer)(nil)

type DebouncerOption func(*Debouncer)

func withAfterFunc(fn afterFunc) DebouncerOption {
	return func(d *Debouncer) {
		if fn != nil {
			d.after = fn
		}
	}
}

func NewDebouncer(buffer *MessageBuffer, flush FlushFunc, opts ...DebouncerOption) (*Debouncer, error) {
	if buffer == nil {
		return nil, errors.New("message buffer is required")
	}
	if flush == nil {
		return nil, errors.New("flush func is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Debouncer{
		buffer:  buffer,
		flush:   flush,
		after:   realAfterFunc,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*pendingWindow),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Submit buffers b.Text and re-arms the window for its key. When the buffer
// store fails the message is flushed right away on the caller's goroutine.
func (d *Debouncer) Submit(ctx context.Context, b Batch) error {
	if err := b.validate(); err != nil {
		return err
	}
	if d.isClosed() {
		return ErrClosed
	}

	created, err := d.buffer.Enqueue(ctx, b.TenantID, b.LeadID, b.Text)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", b.TenantID).
			Str("lead_id", b.LeadID).
			Msg("buffer_unavailable_fallback")
		d.flush(ctx, b)
		return nil
	}

	delay := d.buffer.Policy().Delay(b.Text)
	key := b.TenantID + ":" + b.LeadID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	w := &pendingWindow{gen: d.seq, batch: b}
	d.pending[key] = w
	gen := w.gen
	w.timer = d.after(delay, func() { d.fire(key, gen) })

	log.Debug().
		Str("tenant_id", b.TenantID).
		Str("lead_id", b.LeadID).
		Bool("created", created).
		Dur("delay", delay).
		Msg("buffer_window_armed")
	return nil
}

// Pending reports whether a window is armed for (tenant, lead).
func (d *Debouncer) Pending(tenantID, leadID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[tenantID+":"+leadID]
	return ok
}

// Close stops every armed timer, flushes the open windows, and waits for
// in-flight flushes to return.
func (d *Debouncer) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	open := d.pending
	d.pending = make(map[string]*pendingWindow)
	for _, w := range open {
		w.timer.Stop()
		d.wg.Add(1)
	}
	d.mu.Unlock()

	for _, w := range open {
		go func(w *pendingWindow) {
			defer d.wg.Done()
			d.drainAndFlush(w.batch)
		}(w)
	}
	d.wg.Wait()
	d.cancel()
	return nil
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	w, ok := d.pending[key]
	if !ok || w.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.drainAndFlush(w.batch)
}

func (d *Debouncer) drainAndFlush(b Batch) {
	text, err := d.buffer.Drain(d.ctx, b.TenantID, b.LeadID)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", b.TenantID).
			Str("lead_id", b.LeadID).
			Msg("buffer_drain_failed_using_last_message")
		text = b.Text
	}
	if strings.TrimSpace(text) == "" {
		log.Debug().Str("tenant_id", b.TenantID).Str("lead_id", b.LeadID).Msg("buffer_already_drained")
		return
	}
	b.Text = text
	d.flush(d.ctx, b)
}

func (d *Debouncer) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
