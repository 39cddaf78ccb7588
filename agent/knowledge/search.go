package knowledge

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	minBlockRunes   = 50
	maxBlockRunes   = 400
	maxBlocks       = 15
	maxContextRunes = 6000
	headRunes       = 3000

	chunkSeparator = "\n\n---\n\n"
)

var blockSplit = regexp.MustCompile(`\n\s*\n`)

// SearchChunks picks the paragraphs of content that contain the most query
// words. With no words or no hits it returns the head of content.
func SearchChunks(query, content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return truncateRunes(content, headRunes)
	}

	type scored struct {
		score int
		block string
	}
	var hits []scored
	for _, block := range SplitChunks(content) {
		lower := strings.ToLower(block)
		score := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{score: score, block: block})
		}
	}
	if len(hits) == 0 {
		return truncateRunes(content, headRunes)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxBlocks {
		hits = hits[:maxBlocks]
	}

	parts := make([]string, 0, len(hits))
	total := 0
	for _, h := range hits {
		if total >= maxContextRunes {
			break
		}
		take := h.block
		if utf8.RuneCountInString(take) > maxBlockRunes {
			take = truncateRunes(take, maxBlockRunes) + "..."
		}
		parts = append(parts, take)
		total += utf8.RuneCountInString(take)
	}
	return strings.Join(parts, chunkSeparator)
}

// SplitChunks returns the blank-line separated paragraphs of content that are
// long enough to stand on their own.
func SplitChunks(content string) []string {
	var out []string
	for _, block := range blockSplit.Split(content, -1) {
		block = strings.TrimSpace(block)
		if utf8.RuneCountInString(block) < minBlockRunes {
			continue
		}
		out = append(out, block)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
