package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrEmptyKey = errors.New("buffer key requires tenant and lead")
	ErrNilStore = errors.New("buffer list store is nil")
)

// ListStore is the shared key-value store behind the buffer. Append and Take
// must each be atomic on the server.
type ListStore interface {
	// Append pushes value onto key, refreshes the expiry, and returns the new
	// list length.
	Append(ctx context.Context, key, value string, ttl time.Duration) (int64, error)
	// Take returns every value under key and deletes it.
	Take(ctx context.Context, key string) ([]string, error)
}

// Entry is one buffered message as stored in the list.
type Entry struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// MessageBuffer coalesces rapid inbound messages per (tenant, lead).
type MessageBuffer struct {
	store  ListStore
	policy Policy
	prefix string
	now    func() time.Time
}

type Option func(*MessageBuffer)

func WithKeyPrefix(prefix string) Option {
	return func(b *MessageBuffer) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			b.prefix = trimmed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *MessageBuffer) {
		if now != nil {
			b.now = now
		}
	}
}

func NewMessageBuffer(store ListStore, policy Policy, opts ...Option) (*MessageBuffer, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	b := &MessageBuffer{
		store:  store,
		policy: policy,
		prefix: "buffer",
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

func (b *MessageBuffer) Policy() Policy {
	return b.policy
}

// Key is the list key for (tenant, lead).
func (b *MessageBuffer) Key(tenantID, leadID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	leadID = strings.TrimSpace(leadID)
	if tenantID == "" || leadID == "" {
		return "", ErrEmptyKey
	}
	return b.prefix + ":" + tenantID + ":" + leadID, nil
}

// Enqueue appends text and refreshes the window expiry. created reports
// whether this is the first message of the window.
func (b *MessageBuffer) Enqueue(ctx context.Context, tenantID, leadID, text string) (bool, error) {
	key, err := b.Key(tenantID, leadID)
	if err != nil {
		return false, err
	}

	payload, err := json.Marshal(Entry{
		Message:   text,
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, fmt.Errorf("marshal buffer entry: %w", err)
	}

	ttl := b.policy.TTL(b.policy.Delay(text))
	total, err := b.store.Append(ctx, key, string(payload), ttl)
	if err != nil {
		return false, fmt.Errorf("append buffer entry: %w", err)
	}
	return total == 1, nil
}

// Drain combines the buffered messages in timestamp order and deletes the
// buffer. An empty result means another flusher already drained it.
func (b *MessageBuffer) Drain(ctx context.Context, tenantID, leadID string) (string, error) {
	key, err := b.Key(tenantID, leadID)
	if err != nil {
		return "", err
	}

	raw, err := b.store.Take(ctx, key)
	if err != nil {
		return "", fmt.Errorf("take buffer entries: %w", err)
	}
	return Combine(raw), nil
}

// Combine decodes raw entries, orders them by timestamp, and joins the
// non-empty messages with single spaces. Undecodable values are kept as
// plain text. Entries without a usable timestamp sort first, in arrival
// order.
func Combine(raw []string) string {
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			e = Entry{Message: r}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entryTime(entries[i]).Before(entryTime(entries[j]))
	})

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, " ")
}

func entryTime(e Entry) time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
