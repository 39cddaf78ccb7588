package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTenant is the sentinel tenant id that selects the legacy keyspace.
const DefaultTenant = "default"

var (
	ErrInvalidKey            = errors.New("session key is invalid")
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidStage          = errors.New("invalid stage")
	ErrInvalidClassification = errors.New("invalid classification")
	ErrInvalidMessage        = errors.New("invalid message log entry")
)

// Key identifies one session.
// - Legacy: TenantID and AgentID are empty, LeadID alone is the key.
// - Multi-tenant: (TenantID, AgentID, LeadID); AgentID may be empty.
type Key struct {
	TenantID string `json:"tenant_id,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
	LeadID   string `json:"lead_id"`
}

// NewKey applies the keying rule: an absent or "default" tenant maps to the
// legacy keyspace and the agent id is dropped.
func NewKey(leadID, tenantID, agentID string) Key {
	leadID = strings.TrimSpace(leadID)
	tenantID = strings.TrimSpace(tenantID)
	if IsLegacyTenant(tenantID) {
		return Key{LeadID: leadID}
	}
	return Key{
		TenantID: tenantID,
		AgentID:  strings.TrimSpace(agentID),
		LeadID:   leadID,
	}
}

func IsLegacyTenant(tenantID string) bool {
	tenantID = strings.TrimSpace(tenantID)
	return tenantID == "" || strings.EqualFold(tenantID, DefaultTenant)
}

func (k Key) Legacy() bool {
	return k.TenantID == ""
}

// WithAgent returns the key of the same lead under another agent.
func (k Key) WithAgent(agentID string) Key {
	if k.Legacy() {
		return k
	}
	k.AgentID = strings.TrimSpace(agentID)
	return k
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.LeadID) == "" {
		return fmt.Errorf("%w: lead id is empty", ErrInvalidKey)
	}
	if k.Legacy() && k.AgentID != "" {
		return fmt.Errorf("%w: legacy key cannot carry an agent", ErrInvalidKey)
	}
	return nil
}

func (k Key) String() string {
	if k.Legacy() {
		return "legacy:" + k.LeadID
	}
	return "tenant:" + k.TenantID + ":agent:" + k.AgentID + ":lead:" + k.LeadID
}

// logKey groups message log entries. Multi-tenant logs are shared by every
// agent of a tenant talking to the same lead.
func (k Key) logKey() string {
	if k.Legacy() {
		return "legacy:" + k.LeadID
	}
	return "tenant:" + k.TenantID + ":lead:" + k.LeadID
}

// Session is the persistent per-lead conversation record.
type Session struct {
	Key            Key            `json:"key"`
	Stage          Stage          `json:"current_stage"`
	Classification Classification `json:"classification"`
	Answers        map[string]any `json:"structured_answers,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func NewSession(key Key, now time.Time) *Session {
	return &Session{
		Key:            key,
		Stage:          InitialStage,
		Classification: ClassificationCold,
		Answers:        make(map[string]any, 4),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// MergeAnswers overlays answers onto the session, keeping existing keys.
func (s *Session) MergeAnswers(answers map[string]any) {
	if len(answers) == 0 {
		return
	}
	if s.Answers == nil {
		s.Answers = make(map[string]any, len(answers))
	}
	for k, v := range answers {
		s.Answers[k] = v
	}
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Answers = make(map[string]any, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	return &out
}

func (s *Session) Validate() error {
	if s == nil {
		return errors.New("nil session")
	}
	if err := s.Key.Validate(); err != nil {
		return err
	}
	if !s.Stage.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, s.Stage)
	}
	if !s.Classification.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidClassification, s.Classification)
	}
	return nil
}

/* ------------------------------ Message log ------------------------------ */

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentAudio ContentType = "audio"
)

// Message is one append-only log entry.
type Message struct {
	TenantID    string      `json:"tenant_id,omitempty"`
	AgentID     string      `json:"agent_id,omitempty"`
	LeadID      string      `json:"lead_id"`
	Role        Role        `json:"role"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewMessage builds a log entry for key. An empty content type means text.
func NewMessage(key Key, role Role, content string, contentType ContentType, now time.Time) Message {
	if contentType == "" {
		contentType = ContentText
	}
	return Message{
		TenantID:    key.TenantID,
		AgentID:     key.AgentID,
		LeadID:      key.LeadID,
		Role:        role,
		Content:     content,
		ContentType: contentType,
		Timestamp:   now.UTC(),
	}
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.LeadID) == "" {
		return fmt.Errorf("%w: lead id is empty", ErrInvalidMessage)
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("%w: role=%q", ErrInvalidMessage, m.Role)
	}
	if m.ContentType != ContentText && m.ContentType != ContentAudio {
		return fmt.Errorf("%w: content_type=%q", ErrInvalidMessage, m.ContentType)
	}
	return nil
}
