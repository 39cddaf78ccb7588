package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// Completer runs the completion protocol. Model failures are recovered
// inside; only invalid requests return an error.
type Completer interface {
	Run(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Router chooses the agent for a turn. It never fails the turn.
type Router interface {
	Route(ctx context.Context, req RouteRequest) RouteDecision
}

// ContextResolver returns grounding text for a turn. It never fails; outages
// come back as fallback text.
type ContextResolver interface {
	ContextFor(ctx context.Context, tenantID, folderOverride, query string, stage statex.Stage) string
}

// AgentDirectory looks up tenants and their agents.
type AgentDirectory interface {
	Tenant(ctx context.Context, tenantID string) (Tenant, error)
	Agents(ctx context.Context, tenantID string) ([]AgentDescriptor, error)
}

// MemoryStore holds shared handoff notes between agents.
type MemoryStore interface {
	SaveHandoff(ctx context.Context, note statex.HandoffNote) error
	Handoffs(ctx context.Context, tenantID, leadID, agentID string, limit int) ([]statex.HandoffNote, error)
}

// TurnProcessor is the engine entry point used by ingress.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)
}

// Replier delivers a turn response to the lead's channel.
type Replier interface {
	Reply(ctx context.Context, req TurnRequest, resp TurnResponse) error
}
