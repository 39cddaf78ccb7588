package state

import "strings"

// Classification is the lead temperature. It only ever escalates.
type Classification string

const (
	ClassificationCold     Classification = "cold"
	ClassificationWarm     Classification = "warm"
	ClassificationHot      Classification = "hot"
	ClassificationCustomer Classification = "customer"
)

var classificationRank = map[Classification]int{
	ClassificationCold:     0,
	ClassificationWarm:     1,
	ClassificationHot:      2,
	ClassificationCustomer: 3,
}

func ParseClassification(raw string) (Classification, bool) {
	c := Classification(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case "frio":
		c = ClassificationCold
	case "morno":
		c = ClassificationWarm
	case "quente":
		c = ClassificationHot
	case "cliente":
		c = ClassificationCustomer
	}
	return c, c.Valid()
}

func (c Classification) Valid() bool {
	_, ok := classificationRank[c]
	return ok
}

func (c Classification) Rank() int {
	if r, ok := classificationRank[c]; ok {
		return r
	}
	return -1
}

// Escalate returns whichever of current and proposed ranks higher.
func Escalate(current, proposed Classification) Classification {
	if !proposed.Valid() {
		return current
	}
	if !current.Valid() || proposed.Rank() > current.Rank() {
		return proposed
	}
	return current
}

// ClassificationForStage is the temperature implied by reaching stage.
func ClassificationForStage(stage Stage) Classification {
	switch stage {
	case StageSolution, StageOffer:
		return ClassificationWarm
	case StageClose, StagePostSale:
		return ClassificationHot
	default:
		return ClassificationCold
	}
}
