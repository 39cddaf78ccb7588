package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// ResolveAgent loads the tenant and picks the agent for the turn: the
// explicit agent, else the agent that last talked to the lead, else the
// tenant's first active agent. Legacy tenants have no agents.
func ResolveAgent(
	ctx context.Context,
	in *GraphState,
	directory contractx.AgentDirectory,
	sessions statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted || directory == nil || statex.IsLegacyTenant(in.Request.TenantID) {
		return in, nil
	}

	tenant, err := directory.Tenant(ctx, in.Request.TenantID)
	if errors.Is(err, contractx.ErrTenantNotFound) {
		log.Warn().Str("tenant_id", in.Request.TenantID).Msg("tenant_not_found")
		in.Halted = true
		in.Reply = contractx.TurnResponse{
			ResponseText: TenantNotFoundReply,
			NextStage:    statex.InitialStage,
		}
		return in, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", in.Request.TenantID, err)
	}

	agents, err := directory.Agents(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("load agents for tenant %s: %w", tenant.ID, err)
	}
	in.Tenant = &tenant
	in.Agents = agents

	if explicit := in.Request.AgentID; explicit != "" {
		agent, ok := findAgent(agents, explicit)
		if !ok {
			return nil, fmt.Errorf("%w: %s", contractx.ErrAgentNotFound, explicit)
		}
		in.Agent = agent
		in.Pinned = true
		return in, nil
	}

	latest, err := sessions.LatestAgent(ctx, tenant.ID, in.Request.LeadID)
	if err != nil {
		return nil, fmt.Errorf("load latest agent: %w", err)
	}
	if agent, ok := findAgent(agents, latest); ok && agent.Active {
		in.Agent = agent
		return in, nil
	}

	for i := range agents {
		if agents[i].Active {
			in.Agent = &agents[i]
			return in, nil
		}
	}
	return in, nil
}

func findAgent(agents []contractx.AgentDescriptor, id string) (*contractx.AgentDescriptor, bool) {
	if id == "" {
		return nil, false
	}
	for i := range agents {
		if agents[i].ID == id {
			return &agents[i], true
		}
	}
	return nil, false
}
