package buffer

import (
	"context"
	"errors"
	"strings"
)

var ErrClosed = errors.New("scheduler is closed")

// Batch is one debounced unit of work for a lead. Text holds the single
// submitted message on Submit and the combined window text on flush.
type Batch struct {
	TenantID string `json:"tenant_id"`
	LeadID   string `json:"lead_id"`
	Channel  string `json:"channel,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
	Text     string `json:"text"`
}

func (b Batch) validate() error {
	if strings.TrimSpace(b.TenantID) == "" || strings.TrimSpace(b.LeadID) == "" {
		return ErrEmptyKey
	}
	return nil
}

// FlushFunc processes one drained window. It runs at most once per window.
type FlushFunc func(ctx context.Context, b Batch)

// Scheduler accepts inbound text and eventually flushes it through a
// FlushFunc.
type Scheduler interface {
	Submit(ctx context.Context, b Batch) error
	Close() error
}
