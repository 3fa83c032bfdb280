package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"finrag/internal/dataset"
	"finrag/internal/domain"
	"finrag/internal/service"
)

const (
	DefaultRetrievalSamples  = 50
	DefaultGenerationSamples = 20
)

// Pipeline is the part of the RAG service the runner exercises.
type Pipeline interface {
	Retrieve(ctx context.Context, query string, topK, fetchK int) (service.Retrieval, error)
	Answer(ctx context.Context, query string) (service.Answer, error)
}

// Options controls sampling for a run. Negative sample counts disable the
// corresponding stage; zero uses the default.
type Options struct {
	K                 int
	FetchK            int
	RetrievalSamples  int
	GenerationSamples int
	Dataset           string
}

// Report is the serialised outcome of a run.
type Report struct {
	Retrieval  RetrievalSummary  `json:"retrieval"`
	Generation GenerationSummary `json:"generation"`
	Metadata   Metadata          `json:"metadata"`
}

type RetrievalSummary struct {
	K         int     `json:"k"`
	Precision float64 `json:"precision@k"`
	Recall    float64 `json:"recall@k"`
	MRR       float64 `json:"mrr"`
	Scores    []Score `json:"scores"`
}

type GenerationSummary struct {
	Rouge1  float64            `json:"rouge1"`
	Rouge2  float64            `json:"rouge2"`
	RougeL  float64            `json:"rougeL"`
	Ragas   *RagasSummary      `json:"ragas,omitempty"`
	Samples []GenerationSample `json:"samples"`
}

type GenerationSample struct {
	Question  string       `json:"question"`
	Reference string       `json:"reference"`
	Generated string       `json:"generated"`
	Contexts  []string     `json:"contexts,omitempty"`
	Seconds   float64      `json:"seconds"`
	Rouge     RougeScores  `json:"rouge"`
	Ragas     *RagasScores `json:"ragas,omitempty"`
}

type Metadata struct {
	RetrievalSamples  int     `json:"retrieval_samples"`
	GenerationSamples int     `json:"generation_samples"`
	TotalTimeSeconds  float64 `json:"total_time_seconds"`
	Dataset           string  `json:"dataset"`
}

// Runner evaluates a pipeline against flattened dataset questions.
type Runner struct {
	pipeline Pipeline
	chunker  service.ChunkPreparer
	ragas    *Ragas
	logger   *zap.Logger
}

// NewRunner creates a runner. chunker must be configured like the one used at
// ingest time so that gold chunk ids match the stored ones.
func NewRunner(pipeline Pipeline, chunker service.ChunkPreparer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pipeline: pipeline, chunker: chunker, logger: logger}
}

// WithRagas makes the runner judge every generated answer with g.
func (r *Runner) WithRagas(g *Ragas) *Runner {
	r.ragas = g
	return r
}

// GroundTruthFor maps each question to every chunk of its relevant paragraphs.
func (r *Runner) GroundTruthFor(questions []dataset.Question, paragraphs []domain.Paragraph) ([]GroundTruth, error) {
	chunks, err := r.chunker.PrepareChunks(paragraphs)
	if err != nil {
		return nil, err
	}
	byParagraph := map[string][]string{}
	for _, ch := range chunks {
		byParagraph[ch.ParagraphID] = append(byParagraph[ch.ParagraphID], ch.ChunkID)
	}
	truth := make([]GroundTruth, 0, len(questions))
	for _, q := range questions {
		gt := GroundTruth{Question: q.Question}
		for _, pid := range q.RelParagraphs {
			gt.GoldChunkIDs = append(gt.GoldChunkIDs, byParagraph[pid]...)
		}
		truth = append(truth, gt)
	}
	return truth, nil
}

// Run scores retrieval on up to RetrievalSamples questions and generation on
// up to GenerationSamples questions with a non-empty reference answer.
func (r *Runner) Run(ctx context.Context, questions []dataset.Question, paragraphs []domain.Paragraph, opts Options) (Report, error) {
	start := time.Now()
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.RetrievalSamples == 0 {
		opts.RetrievalSamples = DefaultRetrievalSamples
	}
	if opts.GenerationSamples == 0 {
		opts.GenerationSamples = DefaultGenerationSamples
	}

	retrieval, err := r.evaluateRetrieval(ctx, questions, paragraphs, opts)
	if err != nil {
		return Report{}, err
	}
	generation, err := r.evaluateGeneration(ctx, questions, opts.GenerationSamples)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Retrieval:  retrieval,
		Generation: generation,
		Metadata: Metadata{
			RetrievalSamples:  len(retrieval.Scores),
			GenerationSamples: len(generation.Samples),
			TotalTimeSeconds:  time.Since(start).Seconds(),
			Dataset:           opts.Dataset,
		},
	}
	r.logger.Info("evaluation finished",
		zap.Float64("precision", retrieval.Precision),
		zap.Float64("recall", retrieval.Recall),
		zap.Float64("mrr", retrieval.MRR),
		zap.Float64("rouge1", generation.Rouge1),
		zap.Float64("rougeL", generation.RougeL),
		zap.Float64("seconds", report.Metadata.TotalTimeSeconds))
	return report, nil
}

func (r *Runner) evaluateRetrieval(ctx context.Context, questions []dataset.Question, paragraphs []domain.Paragraph, opts Options) (RetrievalSummary, error) {
	summary := RetrievalSummary{K: opts.K, Scores: []Score{}}
	if opts.RetrievalSamples < 0 {
		return summary, nil
	}
	sample := questions
	if len(sample) > opts.RetrievalSamples {
		sample = sample[:opts.RetrievalSamples]
	}
	truth, err := r.GroundTruthFor(sample, paragraphs)
	if err != nil {
		return summary, fmt.Errorf("ground truth: %w", err)
	}

	retrieved := make(map[string][]string, len(sample))
	for i, q := range sample {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := r.pipeline.Retrieve(ctx, q.Question, opts.K, opts.FetchK)
		if err != nil {
			return summary, fmt.Errorf("retrieve %q: %w", q.Question, err)
		}
		retrieved[q.Question] = res.IDs()
		if (i+1)%10 == 0 {
			r.logger.Info("retrieval progress", zap.Int("done", i+1), zap.Int("total", len(sample)))
		}
	}

	summary.Scores = EvaluateRetrieval(truth, retrieved, opts.K)
	summary.Precision = Mean(summary.Scores, precisionOf)
	summary.Recall = Mean(summary.Scores, recallOf)
	summary.MRR = Mean(summary.Scores, rrOf)
	return summary, nil
}

func (r *Runner) evaluateGeneration(ctx context.Context, questions []dataset.Question, limit int) (GenerationSummary, error) {
	summary := GenerationSummary{Samples: []GenerationSample{}}
	if limit < 0 {
		return summary, nil
	}
	for _, q := range questions {
		if len(summary.Samples) >= limit {
			break
		}
		reference := q.AnswerText()
		if q.Question == "" || reference == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		began := time.Now()
		ans, err := r.pipeline.Answer(ctx, q.Question)
		if err != nil {
			return summary, fmt.Errorf("answer %q: %w", q.Question, err)
		}
		sample := GenerationSample{
			Question:  q.Question,
			Reference: reference,
			Generated: ans.Answer,
			Seconds:   time.Since(began).Seconds(),
			Rouge:     Rouge(reference, ans.Answer),
		}
		for _, h := range ans.Hits {
			sample.Contexts = append(sample.Contexts, h.Text)
		}
		r.logger.Debug("generated answer",
			zap.String("question", q.Question),
			zap.Float64("seconds", sample.Seconds))
		if r.ragas != nil {
			scores, err := r.ragas.Score(ctx, q.Question, ans.Answer, reference, sample.Contexts)
			if err != nil {
				return summary, fmt.Errorf("judge %q: %w", q.Question, err)
			}
			sample.Ragas = &scores
		}
		summary.Samples = append(summary.Samples, sample)
	}
	summary.Rouge1 = Mean(summary.Samples, func(s GenerationSample) float64 { return s.Rouge.Rouge1 })
	summary.Rouge2 = Mean(summary.Samples, func(s GenerationSample) float64 { return s.Rouge.Rouge2 })
	summary.RougeL = Mean(summary.Samples, func(s GenerationSample) float64 { return s.Rouge.RougeL })
	summary.Ragas = summariseRagas(summary.Samples)
	if summary.Ragas != nil {
		r.logger.Info("ragas finished",
			zap.Float64("faithfulness", summary.Ragas.Faithfulness),
			zap.Float64("context_precision", summary.Ragas.ContextPrecision),
			zap.Float64("context_recall", summary.Ragas.ContextRecall),
			zap.Int("samples", summary.Ragas.Samples))
	}
	return summary, nil
}

// WriteFile stores the report as indented JSON.
func (rep Report) WriteFile(path string) error {
	return writeJSON(path, rep)
}

type ragasRow struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth"`
	RagasScores
}

// WriteRagasFile stores the judged samples and their means. It fails when
// the run did not judge any answer.
func (rep Report) WriteRagasFile(path string) error {
	if rep.Generation.Ragas == nil {
		return errors.New("report has no ragas scores")
	}
	rows := []ragasRow{}
	for _, s := range rep.Generation.Samples {
		if s.Ragas == nil {
			continue
		}
		rows = append(rows, ragasRow{
			Question:    s.Question,
			Answer:      s.Generated,
			Contexts:    s.Contexts,
			GroundTruth: s.Reference,
			RagasScores: *s.Ragas,
		})
	}
	return writeJSON(path, struct {
		Summary RagasSummary `json:"summary"`
		Samples []ragasRow   `json:"samples"`
	}{*rep.Generation.Ragas, rows})
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
