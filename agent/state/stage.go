package state

import "strings"

// Stage is one step of the SPIN conversation script.
type Stage string

const (
	StageDiscovery   Stage = "discovery"
	StageProblem     Stage = "problem"
	StageImplication Stage = "implication"
	StageSolution    Stage = "solution"
	StageOffer       Stage = "offer"
	StageClose       Stage = "close"
	StagePostSale    Stage = "post_sale"
)

// InitialStage is the stage every new session starts in.
const InitialStage = StageDiscovery

var stageOrder = []Stage{
	StageDiscovery,
	StageProblem,
	StageImplication,
	StageSolution,
	StageOffer,
	StageClose,
	StagePostSale,
}

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		idx[s] = i
	}
	return idx
}()

var stageAliases = map[string]Stage{
	"descoberta": StageDiscovery,
	"problema":   StageProblem,
	"implicacao": StageImplication,
	"solucao":    StageSolution,
	"oferta":     StageOffer,
	"fechamento": StageClose,
	"pos_venda":  StagePostSale,
	"postsale":   StagePostSale,
}

var stageDisplayNames = map[Stage]string{
	StageDiscovery:   "Descoberta (Situation)",
	StageProblem:     "Problema (Problem)",
	StageImplication: "Implicação (Implication)",
	StageSolution:    "Solução (Need Payoff)",
	StageOffer:       "Oferta",
	StageClose:       "Fechamento",
	StagePostSale:    "Pós-venda",
}

// Stages returns the canonical stage order.
func Stages() []Stage {
	return append([]Stage(nil), stageOrder...)
}

// ParseStage normalizes a raw stage token. Unknown tokens report false.
func ParseStage(raw string) (Stage, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.NewReplacer("-", "_", " ", "_").Replace(token)
	if token == "" {
		return "", false
	}
	if s := Stage(token); s.Valid() {
		return s, true
	}
	if s, ok := stageAliases[token]; ok {
		return s, true
	}
	return "", false
}

func (s Stage) Valid() bool {
	_, ok := stageIndex[s]
	return ok
}

// Index is the position of s in the canonical order, or -1.
func (s Stage) Index() int {
	if i, ok := stageIndex[s]; ok {
		return i
	}
	return -1
}

// Following returns the stage right after s.
func (s Stage) Following() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

func (s Stage) DisplayName() string {
	if name, ok := stageDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

func (s Stage) String() string {
	return string(s)
}

// CanTransition reports whether moving from current to proposed is allowed:
// stay, advance exactly one step, or close -> post_sale.
func CanTransition(current, proposed Stage) bool {
	if current == proposed {
		return true
	}
	if !current.Valid() || !proposed.Valid() {
		return false
	}
	if proposed.Index() == current.Index()+1 {
		return true
	}
	return current == StageClose && proposed == StagePostSale
}

// Next clamps a proposed transition. Illegal proposals leave current unchanged.
func Next(current, proposed Stage) Stage {
	if CanTransition(current, proposed) {
		return proposed
	}
	return current
}
