package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"finrag/internal/config"
	"finrag/internal/dataset"
	"finrag/internal/domain"
	"finrag/internal/evaluation"
	"finrag/internal/logging"
	"finrag/internal/server"
	"finrag/internal/tui"
)

const usage = `Usage: finrag [-config=config.yaml] <command> [args]

Commands:
  ingest             chunk, embed and store the dataset paragraphs
  retrieve <query>   print the top chunks for a query
  ask                interactive question answering
  serve              run the HTTP API
  eval [-ragas]      evaluate retrieval and generation, write evaluation_results.json
`

func main() { os.Exit(run(os.Args[1:])) }

// run executes one command and returns the process exit code. Every deferred
// cleanup has finished by the time it returns.
func run(argv []string) int {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("finrag", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file (optional; uses ~/.config/finrag/config.yaml if not provided)")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return 1
	}

	var cfg *config.AppConfig
	var err error
	path := *cfgPath
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	logger.Debug("config loaded", zap.String("path", path))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("failed to assemble pipeline", zap.Error(err))
		return 1
	}
	defer func() { _ = a.Close() }()

	switch cmd := args[0]; cmd {
	case "ingest":
		err = a.ingest(ctx)
	case "retrieve":
		if len(args) < 2 {
			fs.Usage()
			return 1
		}
		err = a.retrieve(ctx, strings.Join(args[1:], " "))
	case "ask":
		err = a.ask(ctx)
	case "serve":
		err = server.New(a.svc, server.Config{
			Addr:           cfg.Server.Addr,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, logger).Run(ctx)
	case "eval":
		err = a.eval(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 1
	}
	if err != nil {
		logger.Error(args[0]+" failed", zap.Error(err))
		return 1
	}
	return 0
}

func loadParagraphs(path string) ([]domain.Paragraph, []dataset.Question, error) {
	items, err := dataset.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	paragraphs, questions := dataset.Flatten(dataset.FilterTextQuestions(items))
	return paragraphs, questions, nil
}

func (a *app) ingest(ctx context.Context) error {
	paragraphs, questions, err := loadParagraphs(a.cfg.Dataset.Path)
	if err != nil {
		return err
	}
	a.logger.Info("dataset loaded",
		zap.String("path", a.cfg.Dataset.Path),
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("text_questions", len(questions)))
	n, err := a.svc.Ingest(ctx, paragraphs)
	if err != nil {
		return err
	}
	fmt.Printf("Inserted %d chunks into %s.\n", n, a.svc.Collection())
	return nil
}

func (a *app) retrieve(ctx context.Context, query string) error {
	res, err := a.svc.Retrieve(ctx, query, 0, 0)
	if err != nil {
		return err
	}
	if !res.Found {
		fmt.Println("No results. Run `finrag ingest` first.")
		return nil
	}
	for i, h := range res.Hits {
		fmt.Printf("%d. [%s] score=%.3f\n%s\n\n", i+1, h.ID, h.Score, h.Text)
	}
	return nil
}

func (a *app) ask(ctx context.Context) error {
	summary := "collection " + a.svc.Collection()
	if coll, err := a.store.Collection(ctx, a.svc.Collection()); err == nil {
		if n, err := coll.Count(ctx); err == nil {
			summary = fmt.Sprintf("%s, %d chunks", summary, n)
		}
	} else {
		summary += " (not ingested yet)"
	}
	_, err := tea.NewProgram(tui.New(a.svc, a.chunker.Segmenter(), summary), tea.WithContext(ctx)).Run()
	return err
}

func (a *app) eval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	k := fs.Int("k", evaluation.DefaultK, "rank cutoff for retrieval metrics")
	retrievalSamples := fs.Int("retrieval_samples", evaluation.DefaultRetrievalSamples, "questions used for retrieval metrics (-1 skips)")
	generationSamples := fs.Int("generation_samples", evaluation.DefaultGenerationSamples, "questions used for generation metrics (-1 skips)")
	datasetPath := fs.String("dataset", a.cfg.Dataset.EvalPath, "dataset file to evaluate against")
	out := fs.String("out", "evaluation_results.json", "report output path")
	ragas := fs.Bool("ragas", false, "judge generated answers with the configured generator (openai or ollama)")
	ragasOut := fs.String("ragas_out", "ragas_results.json", "ragas report output path")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if *datasetPath != a.cfg.Dataset.Path {
		a.logger.Warn("evaluating a dataset other than the ingested one; gold chunk ids may not match",
			zap.String("ingested", a.cfg.Dataset.Path),
			zap.String("evaluated", *datasetPath))
	}
	paragraphs, questions, err := loadParagraphs(*datasetPath)
	if err != nil {
		return err
	}
	runner := evaluation.NewRunner(a.svc, a.chunker, a.logger)
	if *ragas {
		judge, err := a.judge()
		if err != nil {
			return err
		}
		runner.WithRagas(evaluation.NewRagas(judge, a.embedder, a.chunker.Segmenter()))
	}
	report, err := runner.Run(ctx, questions, paragraphs, evaluation.Options{
		K:                 *k,
		FetchK:            a.cfg.Retriever.FetchK,
		RetrievalSamples:  *retrievalSamples,
		GenerationSamples: *generationSamples,
		Dataset:           *datasetPath,
	})
	if err != nil {
		return err
	}
	if err := report.WriteFile(*out); err != nil {
		return err
	}
	fmt.Printf("Precision@%d: %.4f  Recall@%d: %.4f  MRR: %.4f\n",
		report.Retrieval.K, report.Retrieval.Precision, report.Retrieval.K, report.Retrieval.Recall, report.Retrieval.MRR)
	fmt.Printf("ROUGE-1: %.4f  ROUGE-2: %.4f  ROUGE-L: %.4f\n",
		report.Generation.Rouge1, report.Generation.Rouge2, report.Generation.RougeL)
	fmt.Printf("Results saved to %s\n", *out)
	if sum := report.Generation.Ragas; sum != nil {
		if err := report.WriteRagasFile(*ragasOut); err != nil {
			return err
		}
		fmt.Printf("Faithfulness: %.4f  Context precision: %.4f  Context recall: %.4f\n",
			sum.Faithfulness, sum.ContextPrecision, sum.ContextRecall)
		if sum.AnswerRelevancy != nil {
			fmt.Printf("Answer relevancy: %.4f\n", *sum.AnswerRelevancy)
		}
		fmt.Printf("RAGAS results saved to %s\n", *ragasOut)
	}
	return nil
}
