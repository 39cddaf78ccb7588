package orchestratornode

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

const maxAnswerRunes = 2000

// SaveTurn persists the turn: stage, classification, the answer collected in
// the stage the lead was in, both sides of the exchange and the handoff note
// of an accepted delegation. A store that implements statex.Transactor
// commits them together. A nil memory writes the note through the session
// store.
func SaveTurn(
	ctx context.Context,
	in *GraphState,
	sessions statex.Store,
	memory contractx.MemoryStore,
	nowFn func() time.Time,
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

	write := func(ctx context.Context, tx statex.Store) error {
		if err := writeTurn(ctx, in, tx, nowFn); err != nil {
			return err
		}
		mem := memory
		if mem == nil {
			mem, _ = tx.(contractx.MemoryStore)
		}
		_, err := WriteMemory(ctx, in, mem)
		return err
	}

	var err error
	if txr, ok := sessions.(statex.Transactor); ok {
		err = txr.InTx(ctx, write)
	} else {
		err = write(ctx, sessions)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// writeTurn appends the log first so a store without transactions never
// holds a stage change without the exchange that caused it.
func writeTurn(ctx context.Context, in *GraphState, sessions statex.Store, nowFn func() time.Time) error {
	contentType := statex.ContentText
	if in.Request.IsAudio {
		contentType = statex.ContentAudio
	}
	userMsg := statex.NewMessage(in.Key, statex.RoleUser, in.Request.Text, contentType, in.Now)
	if err := sessions.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	replyAt := nowFn().UTC()
	if !replyAt.After(in.Now) {
		replyAt = in.Now.Add(time.Millisecond)
	}
	replyMsg := statex.NewMessage(in.Key, statex.RoleAssistant, in.Result.Text, statex.ContentText, replyAt)
	if err := sessions.AppendMessage(ctx, replyMsg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	stageKey := string(in.Session.Stage)
	answer := accumulateAnswer(in.Session.Answers[stageKey], in.Request.Text)
	if err := sessions.MergeAnswers(ctx, in.Key, map[string]any{stageKey: answer}); err != nil {
		return fmt.Errorf("merge answers: %w", err)
	}

	if in.Classification != in.Session.Classification {
		if err := sessions.UpdateClassification(ctx, in.Key, in.Classification); err != nil {
			return fmt.Errorf("update classification: %w", err)
		}
	}
	if in.NextStage != in.Session.Stage {
		if err := sessions.UpdateStage(ctx, in.Key, in.NextStage); err != nil {
			return fmt.Errorf("update stage: %w", err)
		}
	}
	return nil
}

// accumulateAnswer appends text to what the lead already said in a stage,
// keeping the newest maxAnswerRunes.
func accumulateAnswer(previous any, text string) string {
	prev, _ := previous.(string)
	prev = strings.TrimSpace(prev)

	out := text
	if prev != "" {
		out = prev + "\n" + text
	}
	r := []rune(out)
	if len(r) > maxAnswerRunes {
		out = string(r[len(r)-maxAnswerRunes:])
	}
	return out
}
