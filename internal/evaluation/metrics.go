// Package evaluation scores retrieval and generation against the dataset's
// reference paragraphs and answers.
package evaluation

// DefaultK is the rank cutoff used when none is given.
const DefaultK = 3

// GroundTruth lists the chunks relevant to a question.
type GroundTruth struct {
	Question     string   `json:"question"`
	GoldChunkIDs []string `json:"gold_chunk_ids"`
}

// Score holds the retrieval metrics of one question.
type Score struct {
	Question       string   `json:"question"`
	Precision      float64  `json:"precision@k"`
	Recall         float64  `json:"recall@k"`
	ReciprocalRank float64  `json:"reciprocal_rank"`
	Retrieved      []string `json:"retrieved"`
}

// EvaluateRetrieval scores the top k retrieved chunk ids of each question.
// retrieved maps question text to ranked chunk ids; questions missing from it
// score zero. Precision divides by the number of ids actually considered, so
// a short list is not penalised for its length.
func EvaluateRetrieval(truth []GroundTruth, retrieved map[string][]string, k int) []Score {
	if k <= 0 {
		k = DefaultK
	}
	scores := make([]Score, 0, len(truth))
	for _, gt := range truth {
		gold := make(map[string]struct{}, len(gt.GoldChunkIDs))
		for _, id := range gt.GoldChunkIDs {
			gold[id] = struct{}{}
		}
		top := retrieved[gt.Question]
		if len(top) > k {
			top = top[:k]
		}

		s := Score{Question: gt.Question, Retrieved: append([]string{}, top...)}
		relevant := 0
		for rank, id := range top {
			if _, ok := gold[id]; !ok {
				continue
			}
			relevant++
			if s.ReciprocalRank == 0 {
				s.ReciprocalRank = 1 / float64(rank+1)
			}
		}
		if len(top) > 0 {
			s.Precision = float64(relevant) / float64(len(top))
		}
		if len(gold) > 0 {
			s.Recall = float64(relevant) / float64(len(gold))
		}
		scores = append(scores, s)
	}
	return scores
}

// Mean averages metric over items, returning 0 for an empty slice.
func Mean[T any](items []T, metric func(T) float64) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, it := range items {
		sum += metric(it)
	}
	return sum / float64(len(items))
}

func precisionOf(s Score) float64 { return s.Precision }
func recallOf(s Score) float64    { return s.Recall }
func rrOf(s Score) float64        { return s.ReciprocalRank }
