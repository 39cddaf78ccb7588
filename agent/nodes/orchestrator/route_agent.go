package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

const handoffMessageRunes = 200

// RouteAgent lets the supervisor move an unpinned turn to a peer agent. An
// accepted handoff switches the agent for this turn and leaves a note for
// the receiving agent.
func RouteAgent(
	ctx context.Context,
	in *GraphState,
	router contractx.Router,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted || router == nil || in.Agent == nil || in.Pinned {
		return in, nil
	}

	decision := router.Route(ctx, contractx.RouteRequest{
		TenantID:       in.Request.TenantID,
		Message:        in.Request.Text,
		History:        in.History,
		CurrentAgentID: in.Agent.ID,
		Agents:         in.Agents,
	})
	in.Route = decision
	if !decision.Handoff {
		return in, nil
	}

	target, ok := findAgent(in.Agents, decision.TargetAgentID)
	if !ok {
		return in, nil
	}

	from := in.Agent
	log.Info().
		Str("tenant_id", in.Request.TenantID).
		Str("lead_id", in.Request.LeadID).
		Str("from_agent_id", from.ID).
		Str("agent_id", target.ID).
		Str("reason", decision.Reason).
		Msg("agent_handoff")

	in.Handoff = &statex.HandoffNote{
		ID:          uuid.NewString(),
		TenantID:    in.Request.TenantID,
		LeadID:      in.Request.LeadID,
		FromAgentID: from.ID,
		ToAgentID:   target.ID,
		Reason:      decision.Reason,
		Summary:     handoffSummary(from, target, decision.Reason, in.Request.Text),
		CreatedAt:   in.Now,
	}
	in.Agent = target
	return in, nil
}

func handoffSummary(from, to *contractx.AgentDescriptor, reason, message string) string {
	msg := []rune(strings.TrimSpace(message))
	if len(msg) > handoffMessageRunes {
		msg = msg[:handoffMessageRunes]
	}

	summary := fmt.Sprintf("Conversa transferida de %s para %s.", agentLabel(from), agentLabel(to))
	if reason = strings.TrimSpace(reason); reason != "" {
		summary += " Motivo: " + reason + "."
	}
	return summary + " Última mensagem do cliente: " + string(msg)
}

func agentLabel(a *contractx.AgentDescriptor) string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return a.ID
	}
	if niche := strings.TrimSpace(a.Niche); niche != "" {
		return name + " (" + niche + ")"
	}
	return name
}
