package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

// WriteMemory stores the handoff note of an accepted delegation. SaveTurn
// calls it inside the turn's unit of work.
func WriteMemory(
	ctx context.Context,
	in *GraphState,
	memory contractx.MemoryStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted || in.Handoff == nil || memory == nil {
		return in, nil
	}

	if err := memory.SaveHandoff(ctx, *in.Handoff); err != nil {
		return nil, fmt.Errorf("save handoff note: %w", err)
	}
	return in, nil
}
