package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

func LoadOrCreateSession(
	ctx context.Context,
	in *GraphState,
	sessions statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted {
		return in, nil
	}

	key := statex.NewKey(in.Request.LeadID, in.Request.TenantID, in.AgentID())
	session, err := sessions.GetOrCreate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	in.Key = key
	in.Session = session
	return in, nil
}
