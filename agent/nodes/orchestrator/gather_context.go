package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

// HandoffNoteLimit bounds the notes injected into one prompt.
const HandoffNoteLimit = 3

// GatherContext fetches the knowledge context and the handoff notes for the
// serving agent concurrently. Neither source fails the turn.
func GatherContext(
	ctx context.Context,
	in *GraphState,
	contexts contractx.ContextResolver,
	memory contractx.MemoryStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Halted {
		return in, nil
	}
	if in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	var (
		knowledge string
		notes     []statex.HandoffNote
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		knowledge = contexts.ContextFor(gctx, in.Request.TenantID, in.FolderOverride(), in.Request.Text, in.Session.Stage)
		return nil
	})
	if agentID := in.AgentID(); agentID != "" && memory != nil {
		g.Go(func() error {
			found, err := memory.Handoffs(gctx, in.Request.TenantID, in.Request.LeadID, agentID, HandoffNoteLimit)
			if err != nil {
				log.Warn().Err(err).
					Str("tenant_id", in.Request.TenantID).
					Str("lead_id", in.Request.LeadID).
					Str("agent_id", agentID).
					Msg("handoff_notes_unavailable")
				return nil
			}
			notes = found
			return nil
		})
	}
	_ = g.Wait()

	if in.Handoff != nil {
		notes = append(notes, *in.Handoff)
	}
	in.Context = knowledge
	in.SharedContext = SharedContext(notes)
	return in, nil
}

// SharedContext renders handoff notes as the prompt section read by the
// receiving agent.
func SharedContext(notes []statex.HandoffNote) string {
	if len(notes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("--- AIOS SHARED CONTEXT ---\n")
	b.WriteString("Esta conversa foi transferida para você por outro agente. Considere o contexto abaixo:\n")
	for _, n := range notes {
		content := strings.TrimSpace(n.Summary)
		if content == "" {
			content = strings.TrimSpace(n.Reason)
		}
		if content == "" {
			continue
		}
		b.WriteString("[HANDOFF_SUMMARY]: " + content + "\n")
	}
	b.WriteString("---------------------------")
	return b.String()
}
