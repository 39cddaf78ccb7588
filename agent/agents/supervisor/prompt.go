package supervisor

import (
	"strings"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

const (
	historyTurns  = 3
	historyRunes  = 200
	behaviorRunes = 100
)

func systemPrompt(candidates []contractx.AgentDescriptor) string {
	lines := make([]string, 0, len(candidates))
	for _, a := range candidates {
		lines = append(lines, describe(a))
	}

	return "Você é o Supervisor de uma equipe de agentes de vendas. " +
		"Sua tarefa é analisar a mensagem do cliente e decidir qual agente é o mais adequado para responder.\n\n" +
		"Agentes disponíveis:\n" + strings.Join(lines, "\n") + "\n\n" +
		"Regras:\n" +
		"- Se o agente atual consegue atender, mantenha-o.\n" +
		"- Só transfira quando o assunto claramente pertence ao nicho de outro agente.\n" +
		"- Use apenas um AGENT_ID da lista.\n\n" +
		`Responda SOMENTE com um objeto JSON: {"target_agent_id": "<id>", "reason": "<motivo curto>"}`
}

func describe(a contractx.AgentDescriptor) string {
	line := "AGENT_ID: " + a.ID + " | Name: " + a.Name + " - Niche: " + a.Niche
	if behavior := strings.TrimSpace(a.CustomInstructions); behavior != "" {
		r := []rune(behavior)
		if len(r) > behaviorRunes {
			behavior = string(r[:behaviorRunes])
		}
		line += " - Behavior: " + behavior + "..."
	}
	return line
}

func userPrompt(req contractx.RouteRequest) string {
	var b strings.Builder

	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Recent History:\n")
		for _, m := range history {
			speaker := "Agent"
			if m.Role == statex.RoleUser {
				speaker = "User"
			}
			content := []rune(strings.TrimSpace(m.Content))
			if len(content) > historyRunes {
				content = content[:historyRunes]
			}
			b.WriteString(speaker + ": " + string(content) + "\n")
		}
		b.WriteString("\n")
	}
	if req.CurrentAgentID != "" {
		b.WriteString("Current Agent: " + req.CurrentAgentID + "\n")
	}
	b.WriteString("New Message: " + strings.TrimSpace(req.Message))
	return b.String()
}
