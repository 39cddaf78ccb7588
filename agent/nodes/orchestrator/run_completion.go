package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

func RunCompletion(
	ctx context.Context,
	in *GraphState,
	completer contractx.Completer,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted {
		return in, nil
	}
	if in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	var persona *contractx.Persona
	if in.Agent != nil {
		persona = in.Agent.Persona()
	}
	if in.SharedContext != "" {
		if persona == nil {
			persona = &contractx.Persona{}
		}
		persona.SharedContext = in.SharedContext
	}

	out, err := completer.Run(ctx, contractx.CompletionRequest{
		LeadID:   in.Request.LeadID,
		Message:  in.Request.Text,
		Stage:    in.Session.Stage,
		Context:  in.Context,
		History:  in.History,
		WasAudio: in.Request.IsAudio,
		Persona:  persona,
	})
	if err != nil {
		return nil, fmt.Errorf("run completion: %w", err)
	}
	in.Result = out
	return in, nil
}
