package ingress

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/buffer"
	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// InboundMessage is one message as received from a channel adapter.
type InboundMessage struct {
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"`
	LeadID   string `json:"lead_id"`
	AgentID  string `json:"agent_id,omitempty"`
	Text     string `json:"text"`
	IsAudio  bool   `json:"is_audio"`
}

func (m InboundMessage) turn() contractx.TurnRequest {
	return contractx.TurnRequest{
		TenantID: m.TenantID,
		Channel:  m.Channel,
		LeadID:   m.LeadID,
		Text:     m.Text,
		IsAudio:  m.IsAudio,
		AgentID:  m.AgentID,
	}
}

// Ingress decides whether a message is answered now or buffered, and
// delivers flushed turns through the Replier.
type Ingress struct {
	processor contractx.TurnProcessor
	replier   contractx.Replier
	scheduler buffer.Scheduler
}

func New(processor contractx.TurnProcessor, replier contractx.Replier) (*Ingress, error) {
	if processor == nil {
		return nil, errors.New("turn processor is required")
	}
	if replier == nil {
		replier = LogReplier{}
	}
	return &Ingress{processor: processor, replier: replier}, nil
}

// UseScheduler enables debouncing. The scheduler's flush callback is
// normally Flush of this Ingress, so it is attached after construction.
func (i *Ingress) UseScheduler(s buffer.Scheduler) {
	i.scheduler = s
}

// Receive answers audio right away and buffers text. The response is nil
// when the message was buffered.
func (i *Ingress) Receive(ctx context.Context, msg InboundMessage) (*contractx.TurnResponse, error) {
	msg.LeadID = strings.TrimSpace(msg.LeadID)
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.LeadID == "" {
		return nil, fmt.Errorf("%w: lead_id is required", contractx.ErrValidation)
	}
	if msg.Text == "" {
		return nil, fmt.Errorf("%w: text is required", contractx.ErrValidation)
	}

	if msg.IsAudio || i.scheduler == nil {
		req := msg.turn()
		resp, err := i.processor.ProcessTurn(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := i.replier.Reply(ctx, req, resp); err != nil {
			log.Error().Err(err).
				Str("tenant_id", req.TenantID).
				Str("lead_id", req.LeadID).
				Msg("reply_delivery_failed")
		}
		return &resp, nil
	}

	tenantID := strings.TrimSpace(msg.TenantID)
	if statex.IsLegacyTenant(tenantID) {
		tenantID = statex.DefaultTenant
	}
	return nil, i.scheduler.Submit(ctx, buffer.Batch{
		TenantID: tenantID,
		LeadID:   msg.LeadID,
		Channel:  msg.Channel,
		AgentID:  msg.AgentID,
		Text:     msg.Text,
	})
}

// Flush runs the turn for a drained window. It is the scheduler's
// buffer.FlushFunc.
func (i *Ingress) Flush(ctx context.Context, b buffer.Batch) {
	req := contractx.TurnRequest{
		TenantID: b.TenantID,
		Channel:  b.Channel,
		LeadID:   b.LeadID,
		Text:     b.Text,
		AgentID:  b.AgentID,
	}

	logger := log.With().Str("tenant_id", b.TenantID).Str("lead_id", b.LeadID).Logger()

	resp, err := i.processor.ProcessTurn(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("flush_turn_failed")
		return
	}
	if err := i.replier.Reply(ctx, req, resp); err != nil {
		logger.Error().Err(err).Msg("reply_delivery_failed")
	}
}
