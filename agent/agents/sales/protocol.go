package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	llmx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/llm"
	promptx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/prompt"
)

// Protocol is the sales completion protocol: it prompts the model, parses
// the structured reply, and clamps the proposed stage.
type Protocol struct {
	runner  compose.Runnable[[]*schema.Message, *schema.Message]
	prompts promptx.PromptSet
}

var _ contractx.Completer = (*Protocol)(nil)

func New(ctx context.Context, chatModel einomodel.BaseChatModel, prompts promptx.PromptSet) (*Protocol, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if err := prompts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrPromptMissing, err)
	}

	runner, err := llmx.CompileMessageGraph(ctx, chatModel, "sales.completion_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile sales graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Protocol{runner: runner, prompts: prompts}, nil
}

// NewFromConfig builds the sales model from the LLM config.
func NewFromConfig(ctx context.Context, cfg llmx.Config) (*Protocol, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := cfg.OpenRouterFor(llmx.RoleSales)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create sales model: %v", contractx.ErrModelInvoke, err)
	}
	return New(ctx, chatModel, promptx.LoadPromptSet())
}

func (p *Protocol) Run(ctx context.Context, req contractx.CompletionRequest) (contractx.CompletionResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.CompletionResult{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}
	if !req.Stage.Valid() {
		return contractx.CompletionResult{}, fmt.Errorf("%w: invalid stage %q", contractx.ErrValidation, req.Stage)
	}

	msgs := []*schema.Message{
		schema.SystemMessage(p.SystemPrompt(req)),
		schema.UserMessage(UserPrompt(req)),
	}

	reply, err := p.runner.Invoke(ctx, msgs)
	if err != nil {
		log.Warn().Err(err).
			Str("lead_id", req.LeadID).
			Str("stage", string(req.Stage)).
			Msg("completion_failed")
		return recovered("", req.Stage), nil
	}

	raw := ""
	if reply != nil {
		raw = reply.Content
	}
	out := ParseReply(raw, req.Stage, req.WasAudio)
	if out.Recovered {
		log.Warn().
			Str("lead_id", req.LeadID).
			Str("stage", string(req.Stage)).
			Int("raw_len", len(raw)).
			Msg("completion_reply_not_json")
	}
	return out, nil
}
