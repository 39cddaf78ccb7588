package state

import (
	"testing"

	"pgregory.net/rapid"
)

func TestNextTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  Stage
		proposed Stage
		want     Stage
	}{
		{"stay", StageProblem, StageProblem, StageProblem},
		{"advance one", StageDiscovery, StageProblem, StageProblem},
		{"skip two", StageDiscovery, StageImplication, StageDiscovery},
		{"jump to close", StageProblem, StageClose, StageProblem},
		{"backward", StageSolution, StageDiscovery, StageSolution},
		{"close to post sale", StageClose, StagePostSale, StagePostSale},
		{"offer to close", StageOffer, StageClose, StageClose},
		{"post sale back to close", StagePostSale, StageClose, StagePostSale},
		{"unknown proposal", StageOffer, Stage("refund"), StageOffer},
		{"empty proposal", StageImplication, Stage(""), StageImplication},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Next(tt.current, tt.proposed); got != tt.want {
				t.Fatalf("Next(%s, %s) = %s, want %s", tt.current, tt.proposed, got, tt.want)
			}
		})
	}
}

func TestNextRejectsIllegalPairs(t *testing.T) {
	t.Parallel()

	stages := Stages()
	rapid.Check(t, func(t *rapid.T) {
		current := rapid.SampledFrom(stages).Draw(t, "current")
		proposed := rapid.SampledFrom(stages).Draw(t, "proposed")

		legal := proposed == current ||
			proposed.Index() == current.Index()+1 ||
			(current == StageClose && proposed == StagePostSale)

		got := Next(current, proposed)
		if legal && got != proposed {
			t.Fatalf("Next(%s, %s) = %s, want proposed", current, proposed, got)
		}
		if !legal && got != current {
			t.Fatalf("Next(%s, %s) = %s, want current", current, proposed, got)
		}
	})
}

func TestNextNeverMovesBackward(t *testing.T) {
	t.Parallel()

	stages := Stages()
	rapid.Check(t, func(t *rapid.T) {
		current := rapid.SampledFrom(stages).Draw(t, "current")
		raw := rapid.OneOf(
			rapid.SampledFrom([]string{"discovery", "problem", "implication", "solution", "offer", "close", "post_sale"}),
			rapid.String(),
		).Draw(t, "raw")

		proposed, ok := ParseStage(raw)
		if !ok {
			proposed = Stage(raw)
		}
		got := Next(current, proposed)
		if !got.Valid() {
			t.Fatalf("Next(%s, %q) = %q is not a canonical stage", current, raw, got)
		}
		if got.Index() < current.Index() || got.Index() > current.Index()+1 {
			t.Fatalf("Next(%s, %q) = %s moved more than one step", current, raw, got)
		}
	})
}

func TestParseStage(t *testing.T) {
	t.Parallel()

	tests := map[string]Stage{
		"discovery":    StageDiscovery,
		"  Problem ":   StageProblem,
		"post-sale":    StagePostSale,
		"post sale":    StagePostSale,
		"fechamento":   StageClose,
		"implicacao":   StageImplication,
		"POS_VENDA":    StagePostSale,
		"need payoff?": "",
	}
	for raw, want := range tests {
		got, ok := ParseStage(raw)
		if want == "" {
			if ok {
				t.Fatalf("ParseStage(%q) = %s, want not ok", raw, got)
			}
			continue
		}
		if !ok || got != want {
			t.Fatalf("ParseStage(%q) = %s, %v, want %s", raw, got, ok, want)
		}
	}
}

func TestStageFollowing(t *testing.T) {
	t.Parallel()

	next, ok := StageOffer.Following()
	if !ok || next != StageClose {
		t.Fatalf("Following() = %s, %v, want close", next, ok)
	}
	if _, ok := StagePostSale.Following(); ok {
		t.Fatal("post_sale must not have a following stage")
	}
}

func TestEscalateOnlyRaises(t *testing.T) {
	t.Parallel()

	all := []Classification{ClassificationCold, ClassificationWarm, ClassificationHot, ClassificationCustomer}
	rapid.Check(t, func(t *rapid.T) {
		current := rapid.SampledFrom(all).Draw(t, "current")
		proposed := rapid.SampledFrom(all).Draw(t, "proposed")

		got := Escalate(current, proposed)
		if got.Rank() < current.Rank() {
			t.Fatalf("Escalate(%s, %s) = %s lowered the classification", current, proposed, got)
		}
		if got != current && got != proposed {
			t.Fatalf("Escalate(%s, %s) = %s invented a value", current, proposed, got)
		}
	})
}

func TestClassificationForStage(t *testing.T) {
	t.Parallel()

	if got := ClassificationForStage(StageClose); got != ClassificationHot {
		t.Fatalf("ClassificationForStage(close) = %s, want hot", got)
	}
	if got := ClassificationForStage(StageOffer); got != ClassificationWarm {
		t.Fatalf("ClassificationForStage(offer) = %s, want warm", got)
	}
	if got := ClassificationForStage(StageDiscovery); got != ClassificationCold {
		t.Fatalf("ClassificationForStage(discovery) = %s, want cold", got)
	}
	if got, ok := ParseClassification("quente"); !ok || got != ClassificationHot {
		t.Fatalf("ParseClassification(quente) = %s, %v", got, ok)
	}
}
