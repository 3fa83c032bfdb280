package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"finrag/internal/chunker"
	"finrag/internal/embedding/hashing"
)

// scriptedJudge answers each kind of judge prompt with a fixed rule.
type scriptedJudge struct {
	faithfulness string
	err          error
	prompts      []string
}

func (j *scriptedJudge) Complete(_ context.Context, prompt string) (string, error) {
	j.prompts = append(j.prompts, prompt)
	if j.err != nil {
		return "", j.err
	}
	switch {
	case strings.HasSuffix(prompt, "Statements:"):
		return j.faithfulness, nil
	case strings.Contains(prompt, "Write the single question"):
		return "What was revenue?", nil
	case strings.Contains(prompt, "Reference answer:"), strings.Contains(prompt, "Statement:\n"):
		_, candidate, _ := strings.Cut(prompt, "Context:\n")
		if strings.Contains(prompt, "Statement:\n") {
			_, candidate, _ = strings.Cut(prompt, "Statement:\n")
		}
		if strings.Contains(strings.SplitN(candidate, "\n\n", 2)[0], "Revenue") {
			return "Yes.", nil
		}
		return "no", nil
	}
	return "", nil
}

func newRagas(t *testing.T, j Judge) *Ragas {
	t.Helper()
	seg, err := chunker.NewPunktSegmenter()
	if err != nil {
		t.Fatalf("NewPunktSegmenter: %v", err)
	}
	return NewRagas(j, hashing.NewEmbedder(64), seg)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestRagas_Metrics(t *testing.T) {
	j := &scriptedJudge{faithfulness: "1. SUPPORTED: Revenue was high.\n- UNSUPPORTED: Profit doubled.\nnothing else"}
	g := newRagas(t, j)
	ctx := context.Background()
	contexts := []string{"Revenue was high.", "Dividends were paid.", "Revenue grew."}

	tests := []struct {
		name string
		run  func() (float64, error)
		want float64
	}{
		{"faithfulness", func() (float64, error) {
			return g.Faithfulness(ctx, "What was revenue?", "Revenue was high and profit doubled.", contexts)
		}, 0.5},
		{"context precision", func() (float64, error) {
			return g.ContextPrecision(ctx, "What was revenue?", "high", contexts)
		}, (1.0 + 2.0/3) / 2},
		{"context recall", func() (float64, error) {
			return g.ContextRecall(ctx, "Revenue was high. Costs were low.", contexts)
		}, 0.5},
		{"answer relevancy", func() (float64, error) {
			return g.AnswerRelevancy(ctx, "What was revenue?", "Revenue was high.")
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !near(got, tt.want) {
				t.Fatalf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRagas_EmptyInputsScoreZero(t *testing.T) {
	j := &scriptedJudge{}
	g := NewRagas(j, nil, nil)
	ctx := context.Background()

	s, err := g.Score(ctx, "q", "", "", nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if s.Faithfulness != 0 || s.ContextPrecision != 0 || s.ContextRecall != 0 || s.AnswerRelevancy != nil {
		t.Fatalf("unexpected scores %+v", s)
	}
	if len(j.prompts) != 0 {
		t.Fatalf("judge should not be called, got %d prompts", len(j.prompts))
	}
	// A reply without verdict lines yields no statements.
	if f, err := g.Faithfulness(ctx, "q", "an answer", []string{"ctx"}); err != nil || f != 0 {
		t.Fatalf("Faithfulness = %v, %v", f, err)
	}
}

func TestRagas_JudgeError(t *testing.T) {
	boom := errors.New("judge offline")
	g := newRagas(t, &scriptedJudge{err: boom})
	if _, err := g.Score(context.Background(), "q", "a", "r", []string{"c"}); !errors.Is(err, boom) {
		t.Fatalf("expected judge error, got %v", err)
	}
}

func TestRun_WithRagas(t *testing.T) {
	p := &fakePipeline{
		answers:  map[string]string{"revenue?": "Revenue was high"},
		contexts: map[string][]string{"revenue?": {"Revenue was high.", "Costs were low."}},
	}
	j := &scriptedJudge{faithfulness: "SUPPORTED: Revenue was high."}
	r := NewRunner(p, wordChunker(t), zaptest.NewLogger(t)).WithRagas(newRagas(t, j))

	rep, err := r.Run(context.Background(), evalQuestions, evalParagraphs, Options{RetrievalSamples: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sum := rep.Generation.Ragas
	if sum == nil || sum.Samples != 1 {
		t.Fatalf("expected one judged sample, got %+v", sum)
	}
	// Only the first of two contexts mentions revenue.
	if !near(sum.Faithfulness, 1) || !near(sum.ContextPrecision, 1) || !near(sum.ContextRecall, 1) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.AnswerRelevancy == nil {
		t.Fatal("answer relevancy should be computed when an embedder is set")
	}
	if got := rep.Generation.Samples[0].Contexts; len(got) != 2 {
		t.Fatalf("contexts = %v", got)
	}

	path := filepath.Join(t.TempDir(), "ragas_results.json")
	if err := rep.WriteRagasFile(path); err != nil {
		t.Fatalf("WriteRagasFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Summary map[string]float64 `json:"summary"`
		Samples []map[string]any   `json:"samples"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("ragas file is not JSON: %v", err)
	}
	if len(decoded.Samples) != 1 || decoded.Samples[0]["ground_truth"] != "Revenue was high" {
		t.Fatalf("unexpected samples %s", data)
	}
	if _, ok := decoded.Samples[0]["faithfulness"]; !ok {
		t.Fatalf("scores should be inlined in each sample: %s", data)
	}
}

func TestWriteRagasFile_WithoutScores(t *testing.T) {
	if err := (Report{}).WriteRagasFile(filepath.Join(t.TempDir(), "r.json")); err == nil {
		t.Fatal("expected error for a report without ragas scores")
	}
}
