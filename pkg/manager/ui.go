package manager

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"yap-switch-manager/pkg/registry"
)

// candidate is one selectable switch row.
type candidate struct {
	Switch     registry.SwitchConfig
	SearchText string
}

func buildCandidates(switches map[string]registry.SwitchConfig) []candidate {
	out := make([]candidate, 0, len(switches))
	for _, sc := range switches {
		out = append(out, candidate{
			Switch:     sc,
			SearchText: strings.ToLower(sc.Name + " " + sc.URL),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Switch.Name < out[j].Switch.Name
	})
	return out
}

// rankMatches filters cands by a whitespace-tokenized fuzzy query.
// Every token must match; results are ordered by score, then name.
func rankMatches(cands []candidate, query string) []candidate {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(tokens) == 0 {
		out := make([]candidate, len(cands))
		copy(out, cands)
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Switch.Name < out[j].Switch.Name
		})
		return out
	}

	type scored struct {
		c candidate
		s int
	}
	scoreds := make([]scored, 0, len(cands))
	for _, c := range cands {
		total := 0
		okAll := true
		for _, t := range tokens {
			s, ok := fuzzyScore(t, c.SearchText)
			if !ok {
				okAll = false
				break
			}
			total += s
		}
		if okAll {
			scoreds = append(scoreds, scored{c: c, s: total})
		}
	}

	sort.SliceStable(scoreds, func(i, j int) bool {
		if scoreds[i].s != scoreds[j].s {
			return scoreds[i].s > scoreds[j].s
		}
		return scoreds[i].c.Switch.Name < scoreds[j].c.Switch.Name
	})

	out := make([]candidate, len(scoreds))
	for i := range scoreds {
		out[i] = scoreds[i].c
	}
	return out
}

// fuzzyScore matches query as a subsequence of text (both lowercase).
func fuzzyScore(query, text string) (int, bool) {
	if query == "" {
		return 0, true
	}
	rt := []rune(text)
	rq := []rune(query)

	ti := 0
	lastPos := -1
	consecutive := 0
	score := 0
	firstPos := -1

	for _, qch := range rq {
		found := false
		for i := ti; i < len(rt); i++ {
			if rt[i] != qch {
				continue
			}
			score += 10
			if firstPos == -1 {
				firstPos = i
			}
			if lastPos >= 0 && i == lastPos+1 {
				consecutive++
				score += 5 * consecutive
			} else {
				consecutive = 0
			}
			// word boundary
			if i == 0 || !isAlphaNum(rt[i-1]) {
				score += 10
			}
			lastPos = i
			ti = i + 1
			found = true
			break
		}
		if !found {
			return 0, false
		}
	}
	if bonus := 20 - firstPos; firstPos >= 0 && bonus > 0 {
		score += bonus
	}
	return score, true
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func padRight(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}
