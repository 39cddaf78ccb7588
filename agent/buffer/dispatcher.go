package buffer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier asks an external scheduler to call back once a window is due.
type Notifier interface {
	NotifyFlush(ctx context.Context, tenantID, leadID string, delay time.Duration) error
}

// Dispatcher times debounce windows through the shared FlushQueue so any
// replica can flush them. Run polls the queue; HandleDue serves callbacks.
type Dispatcher struct {
	buffer   *MessageBuffer
	queue    *FlushQueue
	flush    FlushFunc
	notifier Notifier

	interval  time.Duration
	batch     int64
	metaGrace time.Duration
	now       func() time.Time
}

var _ Scheduler = (*Dispatcher)(nil)

type DispatcherOption func(*Dispatcher)

func WithNotifier(n Notifier) DispatcherOption {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

func WithPolling(interval time.Duration, batch int64) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
		if batch > 0 {
			d.batch = batch
		}
	}
}

func WithMetaGrace(grace time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if grace > 0 {
			d.metaGrace = grace
		}
	}
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDispatcher(buffer *MessageBuffer, queue *FlushQueue, flush FlushFunc, opts ...DispatcherOption) (*Dispatcher, error) {
	if buffer == nil {
		return nil, errors.New("message buffer is required")
	}
	if queue == nil {
		return nil, errors.New("flush queue is required")
	}
	if flush == nil {
		return nil, errors.New("flush func is required")
	}

	d := &Dispatcher{
		buffer:    buffer,
		queue:     queue,
		flush:     flush,
		interval:  time.Second,
		batch:     50,
		metaGrace: 30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Submit buffers b.Text and pushes the window's due time forward.
func (d *Dispatcher) Submit(ctx context.Context, b Batch) error {
	if err := b.validate(); err != nil {
		return err
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
	if err := d.queue.Schedule(ctx, b, d.now().Add(delay), delay+d.metaGrace); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", b.TenantID).
			Str("lead_id", b.LeadID).
			Msg("flush_schedule_failed_flushing_now")
		d.drainAndFlush(ctx, b)
		return nil
	}

	if d.notifier != nil {
		if err := d.notifier.NotifyFlush(ctx, b.TenantID, b.LeadID, delay); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", b.TenantID).
				Str("lead_id", b.LeadID).
				Msg("flush_notify_failed")
		}
	}

	log.Debug().
		Str("tenant_id", b.TenantID).
		Str("lead_id", b.LeadID).
		Bool("created", created).
		Dur("delay", delay).
		Msg("flush_scheduled")
	return nil
}

// Run polls the queue until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.PollOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("flush_poll_failed")
			}
		}
	}
}

// PollOnce flushes every due window it manages to claim and returns how many
// it flushed.
func (d *Dispatcher) PollOnce(ctx context.Context) (int, error) {
	members, err := d.queue.Due(ctx, d.now(), d.batch)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, member := range members {
		tenantID, leadID, ok := SplitMember(member)
		if !ok {
			log.Warn().Str("member", member).Msg("flush_member_malformed")
			continue
		}
		done, err := d.HandleDue(ctx, tenantID, leadID)
		if err != nil {
			log.Warn().Err(err).Str("member", member).Msg("flush_failed")
			continue
		}
		if done {
			flushed++
		}
	}
	return flushed, nil
}

// HandleDue flushes (tenant, lead) when its window is due and unclaimed. It
// reports false without error when the window is not due or another worker
// won it.
func (d *Dispatcher) HandleDue(ctx context.Context, tenantID, leadID string) (bool, error) {
	member, err := Member(tenantID, leadID)
	if err != nil {
		return false, err
	}

	claimed, err := d.queue.Claim(ctx, member, d.now())
	if err != nil || !claimed {
		return false, err
	}

	b, err := d.queue.TakeMeta(ctx, member)
	if err != nil {
		log.Warn().Err(err).Str("member", member).Msg("flush_meta_unavailable")
	}
	return d.drainAndFlush(ctx, b), nil
}

func (d *Dispatcher) Close() error {
	return nil
}

func (d *Dispatcher) drainAndFlush(ctx context.Context, b Batch) bool {
	text, err := d.buffer.Drain(ctx, b.TenantID, b.LeadID)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", b.TenantID).
			Str("lead_id", b.LeadID).
			Msg("buffer_drain_failed_using_last_message")
		text = b.Text
	}
	if strings.TrimSpace(text) == "" {
		log.Debug().Str("tenant_id", b.TenantID).Str("lead_id", b.LeadID).Msg("buffer_already_drained")
		return false
	}
	b.Text = text
	d.flush(ctx, b)
	return true
}

// Immediate is the Scheduler used when buffering is off: every message is
// flushed as its own turn.
type Immediate struct {
	Flush FlushFunc
}

func (i Immediate) Submit(ctx context.Context, b Batch) error {
	if err := b.validate(); err != nil {
		return err
	}
	i.Flush(ctx, b)
	return nil
}

func (i Immediate) Close() error {
	return nil
}
