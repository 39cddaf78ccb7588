package state

import (
	"context"
	"time"
)

// DefaultHistoryLimit bounds the message log read for one turn.
const DefaultHistoryLimit = 20

// Store is the persistence contract used by the orchestrator.
// All mutations are last-writer-wins per field and safe to repeat.
type Store interface {
	// GetOrCreate returns the session for key, creating it at the initial
	// stage with a cold classification only when absent.
	GetOrCreate(ctx context.Context, key Key) (*Session, error)
	UpdateStage(ctx context.Context, key Key, stage Stage) error
	UpdateClassification(ctx context.Context, key Key, c Classification) error
	MergeAnswers(ctx context.Context, key Key, answers map[string]any) error
	AppendMessage(ctx context.Context, msg Message) error
	// RecentMessages returns at most limit entries in chronological order.
	RecentMessages(ctx context.Context, key Key, limit int) ([]Message, error)
	// LatestAgent returns the agent that most recently owned the lead in a
	// tenant, or "" when none.
	LatestAgent(ctx context.Context, tenantID, leadID string) (string, error)
	// Reset restores the initial stage and classification, clears answers,
	// and purges the message log of key.
	Reset(ctx context.Context, key Key) error
}

// Transactor runs fn against a Store whose writes commit together. When fn
// returns an error none of its writes persist.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// HandoffNote is the shared memory written when one agent delegates a lead
// to another.
type HandoffNote struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	LeadID      string    `json:"lead_id"`
	FromAgentID string    `json:"from_agent_id"`
	ToAgentID   string    `json:"to_agent_id"`
	Reason      string    `json:"reason"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

// StoreOption customizes the bundled stores.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

func messageKey(m Message) Key {
	return NewKey(m.LeadID, m.TenantID, m.AgentID)
}
