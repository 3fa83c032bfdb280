package evaluation

import (
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

// RougeScores are F-measures of the three ROUGE variants.
type RougeScores struct {
	Rouge1 float64 `json:"rouge1"`
	Rouge2 float64 `json:"rouge2"`
	RougeL float64 `json:"rougeL"`
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Rouge compares a candidate text against a reference.
func Rouge(reference, candidate string) RougeScores {
	ref := rougeTokens(reference)
	cand := rougeTokens(candidate)
	return RougeScores{
		Rouge1: ngramF(ref, cand, 1),
		Rouge2: ngramF(ref, cand, 2),
		RougeL: lcsF(ref, cand),
	}
}

func rougeTokens(text string) []string {
	fields := strings.Fields(nonAlnum.ReplaceAllString(strings.ToLower(text), " "))
	for i, f := range fields {
		if len(f) <= 3 {
			continue
		}
		if stemmed, err := snowball.Stem(f, "english", false); err == nil && stemmed != "" {
			fields[i] = stemmed
		}
	}
	return fields
}

func ngrams(tokens []string, n int) map[string]int {
	counts := map[string]int{}
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

func ngramF(ref, cand []string, n int) float64 {
	refCounts := ngrams(ref, n)
	candCounts := ngrams(cand, n)
	refTotal, candTotal, overlap := 0, 0, 0
	for _, c := range refCounts {
		refTotal += c
	}
	for g, c := range candCounts {
		candTotal += c
		overlap += min(c, refCounts[g])
	}
	return fMeasure(overlap, refTotal, candTotal)
}

func lcsF(ref, cand []string) float64 {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	prev := make([]int, len(cand)+1)
	cur := make([]int, len(cand)+1)
	for i := 1; i <= len(ref); i++ {
		for j := 1; j <= len(cand); j++ {
			if ref[i-1] == cand[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return fMeasure(prev[len(cand)], len(ref), len(cand))
}

func fMeasure(overlap, refTotal, candTotal int) float64 {
	if overlap == 0 || refTotal == 0 || candTotal == 0 {
		return 0
	}
	p := float64(overlap) / float64(candTotal)
	r := float64(overlap) / float64(refTotal)
	return 2 * p * r / (p + r)
}
