package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"finrag/internal/domain"
	"finrag/internal/vectorstore"
)

// Judge completes a raw prompt with a language model.
type Judge interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RagasScores are the LLM-judged metrics of one generated answer. Answer
// relevancy is only computed when an embedder is available.
type RagasScores struct {
	Faithfulness     float64  `json:"faithfulness"`
	AnswerRelevancy  *float64 `json:"answer_relevancy,omitempty"`
	ContextPrecision float64  `json:"context_precision"`
	ContextRecall    float64  `json:"context_recall"`
}

// RagasSummary averages RagasScores over the judged samples.
type RagasSummary struct {
	Faithfulness     float64  `json:"faithfulness"`
	AnswerRelevancy  *float64 `json:"answer_relevancy,omitempty"`
	ContextPrecision float64  `json:"context_precision"`
	ContextRecall    float64  `json:"context_recall"`
	Samples          int      `json:"samples"`
}

const (
	verdictSupported   = "SUPPORTED"
	verdictUnsupported = "UNSUPPORTED"
)

var (
	faithfulnessPrompt = prompts.NewPromptTemplate(
		"Break the answer into short standalone factual statements. For each statement decide "+
			"whether it can be inferred from the context alone. Reply with one line per statement "+
			"in the form \""+verdictSupported+": <statement>\" or \""+verdictUnsupported+": <statement>\" "+
			"and nothing else.\n\nContext:\n{{.context}}\n\nQuestion:\n{{.question}}\n\nAnswer:\n{{.answer}}\n\nStatements:",
		[]string{"context", "question", "answer"},
	)
	contextPrecisionPrompt = prompts.NewPromptTemplate(
		"Given the question and its reference answer, was the context useful in arriving at "+
			"the reference answer? Reply with yes or no.\n\nQuestion:\n{{.question}}\n\n"+
			"Reference answer:\n{{.reference}}\n\nContext:\n{{.context}}\n\nVerdict:",
		[]string{"question", "reference", "context"},
	)
	contextRecallPrompt = prompts.NewPromptTemplate(
		"Can the statement be attributed to the context? Reply with yes or no.\n\n"+
			"Context:\n{{.context}}\n\nStatement:\n{{.statement}}\n\nVerdict:",
		[]string{"context", "statement"},
	)
	questionPrompt = prompts.NewPromptTemplate(
		"Write the single question that the following answer responds to. Reply with the "+
			"question only.\n\nAnswer:\n{{.answer}}\n\nQuestion:",
		[]string{"answer"},
	)
)

// Ragas computes RAGAS-style metrics with a judge model.
type Ragas struct {
	judge     Judge
	embedder  domain.Embedder
	segmenter domain.Segmenter
}

// NewRagas creates a scorer. embedder enables answer relevancy; segmenter
// splits reference answers into statements for context recall. Both may be nil.
func NewRagas(judge Judge, embedder domain.Embedder, segmenter domain.Segmenter) *Ragas {
	return &Ragas{judge: judge, embedder: embedder, segmenter: segmenter}
}

// Score runs every metric for one answered question.
func (g *Ragas) Score(ctx context.Context, question, answer, reference string, contexts []string) (RagasScores, error) {
	var s RagasScores
	var err error
	if s.Faithfulness, err = g.Faithfulness(ctx, question, answer, contexts); err != nil {
		return s, fmt.Errorf("faithfulness: %w", err)
	}
	if s.ContextPrecision, err = g.ContextPrecision(ctx, question, reference, contexts); err != nil {
		return s, fmt.Errorf("context precision: %w", err)
	}
	if s.ContextRecall, err = g.ContextRecall(ctx, reference, contexts); err != nil {
		return s, fmt.Errorf("context recall: %w", err)
	}
	if g.embedder != nil {
		rel, err := g.AnswerRelevancy(ctx, question, answer)
		if err != nil {
			return s, fmt.Errorf("answer relevancy: %w", err)
		}
		s.AnswerRelevancy = &rel
	}
	return s, nil
}

// Faithfulness is the share of the answer's statements the judge finds
// supported by the retrieved context. An answer without statements scores 0.
func (g *Ragas) Faithfulness(ctx context.Context, question, answer string, contexts []string) (float64, error) {
	if strings.TrimSpace(answer) == "" || len(contexts) == 0 {
		return 0, nil
	}
	out, err := g.ask(ctx, faithfulnessPrompt, map[string]any{
		"context":  strings.Join(contexts, "\n"),
		"question": question,
		"answer":   answer,
	})
	if err != nil {
		return 0, err
	}
	supported, total := 0, 0
	for _, line := range strings.Split(out, "\n") {
		line = strings.ToUpper(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		switch {
		case strings.HasPrefix(line, verdictUnsupported):
			total++
		case strings.HasPrefix(line, verdictSupported):
			supported++
			total++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(supported) / float64(total), nil
}

// ContextPrecision is the average precision of the ranked contexts, where a
// context counts as relevant when the judge finds it useful for the reference.
func (g *Ragas) ContextPrecision(ctx context.Context, question, reference string, contexts []string) (float64, error) {
	useful, sum := 0, 0.0
	for i, c := range contexts {
		ok, err := g.verdict(ctx, contextPrecisionPrompt, map[string]any{
			"question":  question,
			"reference": reference,
			"context":   c,
		})
		if err != nil {
			return 0, err
		}
		if ok {
			useful++
			sum += float64(useful) / float64(i+1)
		}
	}
	if useful == 0 {
		return 0, nil
	}
	return sum / float64(useful), nil
}

// ContextRecall is the share of reference statements attributable to the
// retrieved context.
func (g *Ragas) ContextRecall(ctx context.Context, reference string, contexts []string) (float64, error) {
	statements := g.statements(reference)
	if len(statements) == 0 || len(contexts) == 0 {
		return 0, nil
	}
	joined := strings.Join(contexts, "\n")
	attributed := 0
	for _, st := range statements {
		ok, err := g.verdict(ctx, contextRecallPrompt, map[string]any{"context": joined, "statement": st})
		if err != nil {
			return 0, err
		}
		if ok {
			attributed++
		}
	}
	return float64(attributed) / float64(len(statements)), nil
}

// AnswerRelevancy asks the judge for the question the answer responds to and
// returns its cosine similarity to the original question.
func (g *Ragas) AnswerRelevancy(ctx context.Context, question, answer string) (float64, error) {
	if g.embedder == nil || strings.TrimSpace(answer) == "" {
		return 0, nil
	}
	generated, err := g.ask(ctx, questionPrompt, map[string]any{"answer": answer})
	if err != nil {
		return 0, err
	}
	if generated == "" {
		return 0, nil
	}
	vecs, err := g.embedder.EmbedBatch(ctx, []string{question, generated})
	if err != nil {
		return 0, err
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("%w: expected 2 vectors, got %d", domain.ErrEmbedding, len(vecs))
	}
	return vectorstore.Cosine(vecs[0], vecs[1]), nil
}

func (g *Ragas) statements(reference string) []string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil
	}
	if g.segmenter != nil {
		if sents, err := g.segmenter.Segment(reference); err == nil && len(sents) > 0 {
			return sents
		}
	}
	return []string{reference}
}

func (g *Ragas) ask(ctx context.Context, tmpl prompts.PromptTemplate, values map[string]any) (string, error) {
	prompt, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("render judge prompt: %w", err)
	}
	out, err := g.judge.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// verdict reports whether the judge's reply starts with "yes".
func (g *Ragas) verdict(ctx context.Context, tmpl prompts.PromptTemplate, values map[string]any) (bool, error) {
	out, err := g.ask(ctx, tmpl, values)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimLeft(out, "\"'*` ")), "yes"), nil
}

func summariseRagas(samples []GenerationSample) *RagasSummary {
	var judged []RagasScores
	for _, s := range samples {
		if s.Ragas != nil {
			judged = append(judged, *s.Ragas)
		}
	}
	if len(judged) == 0 {
		return nil
	}
	sum := &RagasSummary{
		Faithfulness:     Mean(judged, func(s RagasScores) float64 { return s.Faithfulness }),
		ContextPrecision: Mean(judged, func(s RagasScores) float64 { return s.ContextPrecision }),
		ContextRecall:    Mean(judged, func(s RagasScores) float64 { return s.ContextRecall }),
		Samples:          len(judged),
	}
	var rel []float64
	for _, s := range judged {
		if s.AnswerRelevancy != nil {
			rel = append(rel, *s.AnswerRelevancy)
		}
	}
	if len(rel) > 0 {
		m := Mean(rel, func(v float64) float64 { return v })
		sum.AnswerRelevancy = &m
	}
	return sum
}
