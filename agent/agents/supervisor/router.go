package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	llmx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/llm"
)

const defaultTimeout = 10 * time.Second

// Choice is the JSON object the supervisor model must return.
type Choice struct {
	TargetAgentID string `json:"target_agent_id"`
	Reason        string `json:"reason"`
}

// Router asks a model which peer agent should own the turn.
type Router struct {
	runner  compose.Runnable[[]*schema.Message, Choice]
	timeout time.Duration
}

var _ contractx.Router = (*Router)(nil)

type Option func(*Router)

func WithTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func New(ctx context.Context, chatModel einomodel.BaseChatModel, opts ...Option) (*Router, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	runner, err := llmx.CompileParsedGraph(ctx, chatModel, parseChoice, "supervisor.route_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile supervisor graph: %v", contractx.ErrModelInvoke, err)
	}

	r := &Router{runner: runner, timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// NewFromConfig builds the supervisor model from the LLM config.
func NewFromConfig(ctx context.Context, cfg llmx.Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := cfg.OpenRouterFor(llmx.RoleSupervisor)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create supervisor model: %v", contractx.ErrModelInvoke, err)
	}
	return New(ctx, chatModel, WithTimeout(cfg.RouterTimeout))
}

func (r *Router) Route(ctx context.Context, req contractx.RouteRequest) contractx.RouteDecision {
	keep := contractx.RouteDecision{TargetAgentID: req.CurrentAgentID, Reason: "keep current agent"}

	candidates := Candidates(req.CurrentAgentID, req.Agents)
	if req.CurrentAgentID != "" {
		// candidates[0] is the current agent; with at most one peer the
		// current agent keeps the lead.
		if len(candidates) <= 2 {
			return keep
		}
	} else {
		switch len(candidates) {
		case 0:
			return keep
		case 1:
			return contractx.RouteDecision{TargetAgentID: candidates[0].ID, Reason: "single candidate"}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	choice, err := r.runner.Invoke(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt(candidates)),
		schema.UserMessage(userPrompt(req)),
	})
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", req.TenantID).
			Str("agent_id", req.CurrentAgentID).
			Msg("route_fallback")
		return keep
	}

	target := strings.TrimSpace(choice.TargetAgentID)
	if !containsAgent(candidates, target) {
		log.Warn().
			Str("tenant_id", req.TenantID).
			Str("agent_id", req.CurrentAgentID).
			Str("target_agent_id", target).
			Msg("route_invalid_target")
		return keep
	}

	return contractx.RouteDecision{
		TargetAgentID: target,
		Reason:        strings.TrimSpace(choice.Reason),
		Handoff:       req.CurrentAgentID != "" && target != req.CurrentAgentID,
	}
}

// Candidates returns the agents the turn may be routed to, the current agent
// first. Without a current agent every active agent is a candidate. Otherwise
// peers come from the current agent's allow-list, or from its team when the
// allow-list is empty.
func Candidates(currentID string, agents []contractx.AgentDescriptor) []contractx.AgentDescriptor {
	if currentID == "" {
		out := make([]contractx.AgentDescriptor, 0, len(agents))
		for _, a := range agents {
			if a.Active {
				out = append(out, a)
			}
		}
		return out
	}

	var current *contractx.AgentDescriptor
	for i := range agents {
		if agents[i].ID == currentID {
			current = &agents[i]
			break
		}
	}
	if current == nil {
		return nil
	}

	allowed := make(map[string]struct{}, len(current.DelegationAllowList))
	for _, id := range current.DelegationAllowList {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = struct{}{}
		}
	}

	out := []contractx.AgentDescriptor{*current}
	for _, a := range agents {
		if a.ID == current.ID || !a.Active {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[a.ID]; ok {
				out = append(out, a)
			}
			continue
		}
		if current.SameTeam(a) {
			out = append(out, a)
		}
	}
	return out
}

func containsAgent(agents []contractx.AgentDescriptor, id string) bool {
	if id == "" {
		return false
	}
	for _, a := range agents {
		if a.ID == id {
			return true
		}
	}
	return false
}

func parseChoice(ctx context.Context, msg *schema.Message) (Choice, error) {
	if msg == nil {
		return Choice{}, fmt.Errorf("%w: empty supervisor reply", contractx.ErrSchemaViolation)
	}
	obj, err := llmx.ExtractJSONObject(msg.Content)
	if err != nil {
		return Choice{}, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}
	var out Choice
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return Choice{}, fmt.Errorf("%w: decode supervisor reply: %v", contractx.ErrSchemaViolation, err)
	}
	return out, nil
}
