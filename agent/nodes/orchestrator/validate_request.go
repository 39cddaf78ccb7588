package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

var (
	ErrInvalidLead    = errors.New("lead id is empty")
	ErrInvalidMessage = errors.New("message is empty")
)

// TenantNotFoundReply is sent when the tenant id is unknown.
const TenantNotFoundReply = "Empresa não encontrada. Entre em contato com o suporte."

type GraphInput struct {
	Request contractx.TurnRequest
}

type GraphOutput struct {
	Response contractx.TurnResponse
}

type GraphState struct {
	Request contractx.TurnRequest
	Now     time.Time

	// Halted turns pass through the remaining nodes untouched and return
	// Reply as is.
	Halted bool
	Reply  contractx.TurnResponse

	Tenant *contractx.Tenant
	Agents []contractx.AgentDescriptor
	Agent  *contractx.AgentDescriptor
	// Pinned is set when the caller named the agent explicitly.
	Pinned bool

	Route   contractx.RouteDecision
	Handoff *statex.HandoffNote

	Key           statex.Key
	History       []statex.Message
	Session       *statex.Session
	Context       string
	SharedContext string

	Result         contractx.CompletionResult
	NextStage      statex.Stage
	Classification statex.Classification
}

func (s *GraphState) AgentID() string {
	if s == nil || s.Agent == nil {
		return ""
	}
	return s.Agent.ID
}

func (s *GraphState) FolderOverride() string {
	if s == nil || s.Tenant == nil {
		return ""
	}
	return strings.TrimSpace(s.Tenant.DriveFolderID)
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	req := in.Request
	req.LeadID = strings.TrimSpace(req.LeadID)
	if req.LeadID == "" {
		return nil, ErrInvalidLead
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, ErrInvalidMessage
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.Channel = strings.TrimSpace(req.Channel)

	return &GraphState{
		Request: req,
		Now:     nowFn().UTC(),
	}, nil
}
