package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"finrag/internal/domain"
)

const (
	DefaultMaxSentences = 2

	// NoContextAnswer is returned when there is nothing to extract from.
	NoContextAnswer = "I could not find relevant information in the provided context."
)

// Generator answers by selecting the context sentences that best match the
// query. It needs no model and is deterministic.
type Generator struct {
	segmenter    domain.Segmenter
	maxSentences int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates an extractive generator returning at most maxSentences
// sentences per answer.
func New(segmenter domain.Segmenter, maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Generator{
		segmenter:    segmenter,
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:[.,'’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Generate ranks context sentences by query overlap, with word frequency
// across the context as a tie breaker, and returns the best ones in their
// original order.
func (g *Generator) Generate(ctx context.Context, contextText, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(contextText) == "" {
		return NoContextAnswer, nil
	}
	var sentences []string
	for _, line := range strings.Split(contextText, "\n") {
		ss, err := g.segmenter.Segment(line)
		if err != nil {
			return "", err
		}
		sentences = append(sentences, ss...)
	}
	if len(sentences) == 0 {
		return NoContextAnswer, nil
	}

	queryTerms := map[string]struct{}{}
	for _, tok := range g.terms(query) {
		queryTerms[tok] = struct{}{}
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range g.terms(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx     int
		overlap int
		score   float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := g.terms(sent)
		seen := map[string]struct{}{}
		s := scored{idx: i}
		for _, tok := range toks {
			if maxF > 0 {
				s.score += freq[tok] / maxF
			}
			if _, ok := queryTerms[tok]; !ok {
				continue
			}
			if _, dup := seen[tok]; !dup {
				seen[tok] = struct{}{}
				s.overlap++
			}
		}
		if l := float64(len(toks)); l > 0 {
			s.score /= math.Sqrt(l)
		}
		scores[i] = s
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].overlap != scores[j].overlap {
			return scores[i].overlap > scores[j].overlap
		}
		return scores[i].score > scores[j].score
	})

	n := min(g.maxSentences, len(scores))
	// Sentences sharing no term with the query are only used when nothing matches.
	if scores[0].overlap > 0 {
		for n > 1 && scores[n-1].overlap == 0 {
			n--
		}
	}
	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (g *Generator) terms(text string) []string {
	toks := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := toks[:0]
	for _, t := range toks {
		if _, ok := g.stopwords[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "when", "where", "why", "did", "does", "do", "its", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
