package memory

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hupe1980/cognimesh/core"
)

// DefaultSearchLimit applies when SearchKnowledge is called with limit <= 0.
const DefaultSearchLimit = 5

// Terms splits text into lowercase words of at least two characters.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if len(f) < 2 {
			continue
		}

		if _, ok := seen[f]; ok {
			continue
		}

		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

// ScoreText returns the fraction of query terms contained in content.
func ScoreText(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 1
	}

	lc := strings.ToLower(content)
	hits := 0

	for _, t := range terms {
		if strings.Contains(lc, t) {
			hits++
		}
	}

	return float64(hits) / float64(len(terms))
}

// RankKnowledge scores candidates against query, drops non-matches and
// returns the best limit items. Candidates are expected oldest first; ties
// keep that order.
func RankKnowledge(candidates []core.Memory, query string, limit int) []core.KnowledgeItem {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	terms := Terms(query)
	items := make([]core.KnowledgeItem, 0, len(candidates))

	for _, m := range candidates {
		score := ScoreText(terms, m.Content)
		if score <= 0 {
			continue
		}

		items = append(items, core.KnowledgeItem{ID: m.ID, Content: m.Content, Score: score, Metadata: copyMetadata(m.Metadata)})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })

	if len(items) > limit {
		items = items[:limit]
	}

	return items
}

func copyMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}

	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}

	return out
}
