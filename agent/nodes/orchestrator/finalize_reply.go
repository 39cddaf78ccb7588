package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted {
		return GraphOutput{Response: in.Reply}, nil
	}

	reply := strings.TrimSpace(in.Result.Text)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: completion returned empty text", contractx.ErrValidation)
	}

	return GraphOutput{Response: contractx.TurnResponse{
		ResponseText:   reply,
		SendAudio:      in.Result.SendAudio,
		NextStage:      in.NextStage,
		SendImages:     in.Result.SendImages,
		ModelNames:     in.Result.ModelNames,
		AgentID:        in.AgentID(),
		Classification: in.Classification,
	}}, nil
}
