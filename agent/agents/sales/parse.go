package sales

import (
	"encoding/json"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	llmx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/llm"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// Apology is sent when the model produced nothing usable.
const Apology = "Desculpe, tive um problema. Pode repetir?"

const rawFallbackRunes = 2000

var fieldAliases = map[string][]string{
	"text":        {"text", "resposta_texto"},
	"send_audio":  {"send_audio", "enviar_audio"},
	"next_stage":  {"next_stage", "proximo_estado"},
	"send_images": {"send_images", "enviar_imagens"},
	"model_names": {"model_names", "modelos"},
}

// ParseReply turns a raw model reply into a CompletionResult. It never
// fails: unparseable replies come back as raw text at the current stage.
func ParseReply(raw string, current statex.Stage, wasAudio bool) contractx.CompletionResult {
	obj, err := llmx.ExtractJSONObject(raw)
	if err != nil {
		return recovered(raw, current)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return recovered(raw, current)
	}

	out := contractx.CompletionResult{
		Text:      strings.TrimSpace(stringField(fields, "text")),
		SendAudio: wasAudio,
		NextStage: current,
	}
	if v, ok := boolField(fields, "send_audio"); ok {
		out.SendAudio = v
	}
	if v, ok := boolField(fields, "send_images"); ok {
		out.SendImages = v
	}
	out.ModelNames = listField(fields, "model_names")

	if proposed, ok := statex.ParseStage(stringField(fields, "next_stage")); ok {
		out.NextStage = statex.Next(current, proposed)
	}
	if out.Text == "" {
		out.Text = Apology
	}
	return out
}

func recovered(raw string, current statex.Stage) contractx.CompletionResult {
	text := truncateRunes(strings.TrimSpace(raw), rawFallbackRunes)
	if text == "" {
		text = Apology
	}
	return contractx.CompletionResult{
		Text:      text,
		NextStage: current,
		Recovered: true,
	}
}

func lookup(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	for _, key := range fieldAliases[name] {
		if v, ok := fields[key]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := lookup(fields, name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func boolField(fields map[string]json.RawMessage, name string) (bool, bool) {
	raw, ok := lookup(fields, name)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return false, false
}

// listField keeps only a literal JSON list; string items are kept in order.
func listField(fields map[string]json.RawMessage, name string) []string {
	raw, ok := lookup(fields, name)
	if !ok {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
