package sales

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

const (
	historyTurns = 12
	historyRunes = 300

	sectionSeparator = "\n\n---\n\n"
)

const oneReplyRule = "IMPORTANTE: Interprete a mensagem atual e o histórico da conversa antes de responder. " +
	"Se o cliente repetir a mesma coisa (ex.: vários 'oi'), varie a resposta em vez de repetir igual. " +
	"Cada resposta deve ser específica para o que ele acabou de dizer.\n\n" +
	"UMA ENTRADA = UMA RESPOSTA: se a mensagem do cliente tiver várias linhas ou frases juntas, " +
	"trate como UMA só intenção e responda UMA única vez, de forma natural. " +
	"Não responda ponto a ponto para cada linha ou frase."

const replyContract = "Responda SOMENTE com um objeto JSON no formato:\n" +
	`{"text": "...", "send_audio": true/false, "next_stage": "...", "send_images": true/false, "model_names": ["nome1", "nome2"] ou null}` + "\n" +
	"text: mensagem para o cliente. next_stage: valor interno de um estado SPIN. " +
	"send_images: true apenas quando for hora de mostrar 2 ou 3 modelos (solução ou oferta). " +
	"model_names: lista com 2 ou 3 nomes de modelos da base para enviar imagens; se send_images for false, use null."

// SystemPrompt renders persona, shared context, directives, the stage
// instruction, and the reply contract.
func (p *Protocol) SystemPrompt(req contractx.CompletionRequest) string {
	parts := make([]string, 0, 6)

	if req.Persona.IsCustom() {
		parts = append(parts, customPersona(req.Persona))
	} else {
		parts = append(parts, p.prompts.Persona, p.prompts.Spin)
	}
	if req.Persona != nil {
		if shared := strings.TrimSpace(req.Persona.SharedContext); shared != "" {
			parts = append(parts, shared)
		}
	}
	parts = append(parts, p.prompts.Rules)

	return strings.Join(parts, sectionSeparator) +
		"\n\n" + stageInstruction(req.Stage) +
		"\n\n" + oneReplyRule +
		"\n\n" + replyContract
}

func customPersona(persona *contractx.Persona) string {
	var b strings.Builder
	name := strings.TrimSpace(persona.Name)
	if name == "" {
		name = "o agente"
	}
	b.WriteString("Você é " + name)
	if niche := strings.TrimSpace(persona.Niche); niche != "" {
		b.WriteString(", atuando como " + niche)
	}
	b.WriteString(". Apresente-se sempre com esse nome e nicho ao falar com o cliente. ")
	if custom := strings.TrimSpace(persona.CustomInstructions); custom != "" {
		b.WriteString("Instruções específicas: " + custom + ". ")
	}
	b.WriteString("Fale apenas de produtos e serviços do seu nicho. " +
		"Use o método SPIN na ordem: descoberta (situação do cliente no SEU nicho), problema (dores), " +
		"implicação (riscos), solução, oferta, fechamento e pós-venda.")
	return b.String()
}

func stageInstruction(stage statex.Stage) string {
	order := make([]string, 0, len(statex.Stages()))
	for _, s := range statex.Stages() {
		order = append(order, string(s))
	}

	allowed := string(stage)
	if next, ok := stage.Following(); ok {
		allowed += " ou " + string(next)
	}

	return fmt.Sprintf(
		"Estado atual da conversa: **%s** (valor interno: %s). "+
			"Siga as regras do SPIN: não pule etapas. Sua resposta (texto e tom) deve refletir SOMENTE este estado. "+
			"next_stage deve ser o estado atual ou o PRÓXIMO na ordem (%s): use %s. "+
			"NUNCA retorne um estado anterior ao atual.",
		stage.DisplayName(), stage, strings.Join(order, " -> "), allowed,
	)
}

// UserPrompt renders grounding context, recent history, and the current
// message.
func UserPrompt(req contractx.CompletionRequest) string {
	var b strings.Builder
	b.WriteString("CONTEXTO DA BASE DE CONHECIMENTO (use apenas isso para preços, links, benefícios):\n")
	b.WriteString(req.Context)

	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	wroteHeader := false
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if !wroteHeader {
			b.WriteString("\n\nHistórico da conversa (use para interpretar repetições e contexto):")
			wroteHeader = true
		}
		speaker := "Você"
		if m.Role == statex.RoleUser {
			speaker = "Cliente"
		}
		b.WriteString("\n" + speaker + ": " + truncateRunes(content, historyRunes))
	}

	b.WriteString("\n\nMensagem atual do cliente (interprete antes de responder): ")
	b.WriteString(strings.TrimSpace(req.Message))
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
