package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

func LoadHistory(
	ctx context.Context,
	in *GraphState,
	sessions statex.Store,
	limit int,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted {
		return in, nil
	}

	key := statex.NewKey(in.Request.LeadID, in.Request.TenantID, in.AgentID())
	history, err := sessions.RecentMessages(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	in.History = history
	return in, nil
}
