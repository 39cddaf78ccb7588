package prompt

import (
	_ "embed"
	"errors"
	"strings"
)

var (
	//go:embed template/persona_default.md
	personaRaw string

	//go:embed template/spin.md
	spinRaw string

	//go:embed template/rules.md
	rulesRaw string
)

// PromptSet holds the sales directives.
type PromptSet struct {
	// Persona is the default SDR persona, used when the agent has none.
	Persona string
	// Spin holds the stage-by-stage examples of the default persona.
	Spin  string
	Rules string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Persona: strings.TrimSpace(personaRaw),
		Spin:    strings.TrimSpace(spinRaw),
		Rules:   strings.TrimSpace(rulesRaw),
	}
}

func (p PromptSet) Validate() error {
	if strings.TrimSpace(p.Persona) == "" || strings.TrimSpace(p.Spin) == "" || strings.TrimSpace(p.Rules) == "" {
		return errors.New("persona, spin and rules prompts are required")
	}
	return nil
}
