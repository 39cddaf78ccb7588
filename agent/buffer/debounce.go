package buffer

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	MinDelay      = 2 * time.Second
	DefaultDelay  = 4 * time.Second
	ExtendedDelay = 5 * time.Second
	MaxDelay      = 8 * time.Second
	MaxFixedDelay = 15 * time.Second
	TTLMargin     = 3 * time.Second

	longMessageRunes  = 200
	shortMessageRunes = 10
	terminalMarks     = ".!?;:"
)

// Policy computes debounce delays. A non-zero Fixed overrides the heuristic.
type Policy struct {
	Fixed time.Duration
}

// NewPolicy reads the fixed override from cfg. Unparseable values are ignored.
func NewPolicy(cfg Config) Policy {
	raw := strings.TrimSpace(cfg.DebounceSeconds)
	if raw == "" {
		return Policy{}
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		log.Warn().Str("value", raw).Msg("debounce_override_ignored")
		return Policy{}
	}
	return Policy{Fixed: clamp(time.Duration(seconds*float64(time.Second)), MinDelay, MaxFixedDelay)}
}

// Delay returns how long to wait for follow-up messages after text.
func (p Policy) Delay(text string) time.Duration {
	if p.Fixed > 0 {
		return clamp(p.Fixed, MinDelay, MaxFixedDelay)
	}

	msg := strings.TrimSpace(text)
	n := utf8.RuneCountInString(msg)
	if n > longMessageRunes {
		return MinDelay
	}

	delay := DefaultDelay
	if n < shortMessageRunes || !endsWithTerminalMark(msg) {
		delay = ExtendedDelay
	}
	return clamp(delay, MinDelay, MaxDelay)
}

// TTL is the buffer key expiry for a window of the given delay, rounded up to
// whole seconds.
func (p Policy) TTL(delay time.Duration) time.Duration {
	if delay < MinDelay {
		delay = MinDelay
	}
	seconds := delay / time.Second
	if delay%time.Second != 0 {
		seconds++
	}
	return seconds*time.Second + TTLMargin
}

// ComputeDebounceDelay applies the heuristic without a fixed override.
func ComputeDebounceDelay(text string) time.Duration {
	return Policy{}.Delay(text)
}

func endsWithTerminalMark(msg string) bool {
	last, _ := utf8.DecodeLastRuneInString(msg)
	return last != utf8.RuneError && strings.ContainsRune(terminalMarks, last)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
