package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// ApplyTransition clamps the proposed stage against the stored one and
// raises the lead classification implied by the new stage.
func ApplyTransition(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted {
		return in, nil
	}
	if in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.NextStage = statex.Next(in.Session.Stage, in.Result.NextStage)
	in.Classification = statex.Escalate(in.Session.Classification, statex.ClassificationForStage(in.NextStage))
	return in, nil
}
