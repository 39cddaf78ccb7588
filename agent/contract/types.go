package contract

import (
	"strings"

	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// TurnRequest is one logical user turn, possibly a debounced batch.
type TurnRequest struct {
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"`
	LeadID   string `json:"lead_id"`
	Text     string `json:"text"`
	IsAudio  bool   `json:"is_audio"`
	AgentID  string `json:"agent_id,omitempty"`
}

// TurnResponse is what channel adapters deliver back to the lead.
type TurnResponse struct {
	ResponseText   string                `json:"response_text"`
	SendAudio      bool                  `json:"send_audio"`
	NextStage      statex.Stage          `json:"next_stage"`
	SendImages     bool                  `json:"send_images"`
	ModelNames     []string              `json:"model_names"`
	AgentID        string                `json:"agent_id,omitempty"`
	Classification statex.Classification `json:"classification,omitempty"`
}

// Persona customizes the sales voice. A zero Persona selects the default
// SDR persona.
type Persona struct {
	Name               string `json:"name,omitempty"`
	Niche              string `json:"niche,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
	// SharedContext carries handoff notes addressed to this agent.
	SharedContext string `json:"shared_context,omitempty"`
}

func (p *Persona) IsCustom() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.Name) != "" ||
		strings.TrimSpace(p.Niche) != "" ||
		strings.TrimSpace(p.CustomInstructions) != ""
}

type CompletionRequest struct {
	LeadID   string           `json:"lead_id"`
	Message  string           `json:"message"`
	Stage    statex.Stage     `json:"stage"`
	Context  string           `json:"context"`
	History  []statex.Message `json:"history,omitempty"`
	WasAudio bool             `json:"was_audio"`
	Persona  *Persona         `json:"persona,omitempty"`
}

// CompletionResult is the normalized model reply. NextStage has already
// been clamped by the state machine.
type CompletionResult struct {
	Text       string       `json:"text"`
	SendAudio  bool         `json:"send_audio"`
	NextStage  statex.Stage `json:"next_stage"`
	SendImages bool         `json:"send_images"`
	ModelNames []string     `json:"model_names"`
	// Recovered reports that the reply was not valid JSON and Text holds the
	// raw model output.
	Recovered bool `json:"-"`
}

// AgentDescriptor is a tenant-configured agent, read-only to the engine.
type AgentDescriptor struct {
	ID                  string   `json:"id"`
	TenantID            string   `json:"tenant_id"`
	Name                string   `json:"name"`
	Niche               string   `json:"niche"`
	CustomInstructions  string   `json:"custom_instructions"`
	Active              bool     `json:"active"`
	DelegationAllowList []string `json:"delegation_allow_list,omitempty"`
	TeamID              *string  `json:"team_id,omitempty"`
}

func (a AgentDescriptor) Persona() *Persona {
	return &Persona{
		Name:               a.Name,
		Niche:              a.Niche,
		CustomInstructions: a.CustomInstructions,
	}
}

// SameTeam reports whether a and b share a team. An agent without a team
// only shares it with itself.
func (a AgentDescriptor) SameTeam(b AgentDescriptor) bool {
	if a.TeamID == nil || b.TeamID == nil {
		return a.ID == b.ID
	}
	return *a.TeamID == *b.TeamID
}

type Tenant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DriveFolderID string `json:"drive_folder_id,omitempty"`
}

type RouteRequest struct {
	TenantID       string           `json:"tenant_id"`
	Message        string           `json:"message"`
	History        []statex.Message `json:"history,omitempty"`
	CurrentAgentID string           `json:"current_agent_id,omitempty"`
	// Agents is the tenant's agent roster.
	Agents []AgentDescriptor `json:"agents"`
}

type RouteDecision struct {
	TargetAgentID string `json:"target_agent_id"`
	Reason        string `json:"reason"`
	// Handoff is true when TargetAgentID differs from the current agent.
	Handoff bool `json:"handoff"`
}
