package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dfmea/internal/chunker"
	"dfmea/internal/completion"
	"dfmea/internal/config"
	"dfmea/internal/domain"
	"dfmea/internal/embedding"
	"dfmea/internal/embedding/local"
	"dfmea/internal/embedding/openai"
	"dfmea/internal/normalize"
	"dfmea/internal/retry"
	"dfmea/internal/service"
	"dfmea/internal/source"
	"dfmea/internal/synth"
	"dfmea/internal/tui"
	"dfmea/internal/vectorstore/memory"
	"dfmea/internal/vectorstore/qdrant"
	"dfmea/internal/workbook"
)

var (
	cfgPath string
	verbose bool

	cfg *config.AppConfig
	log *zap.SugaredLogger
)

func main() {
	root := &cobra.Command{
		Use:           "dfmea",
		Short:         "Evidence-gated DFMEA generation from indexed design knowledge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			var err error
			if cfgPath == "" {
				cfg, _, err = config.LoadDefault()
			} else {
				cfg, err = config.Load(cfgPath)
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err = newLogger(verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default: ./config.yaml, then ~/.config/dfmea/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose console logging")

	root.AddCommand(newIndexCmd(), newGenerateCmd(), newReviewCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func newIndexCmd() *cobra.Command {
	var recordsPath string
	var reset bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and index source records into the evidence corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := source.LoadRecords(recordsPath)
			if err != nil {
				return err
			}
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if reset {
				if err := p.Reset(ctx); err != nil {
					return fmt.Errorf("reset corpus: %w", err)
				}
			}
			stats, err := p.Index(ctx, records)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d records: %d chunks, %d embedded, %d upserted, %d dropped.\n",
				stats.Items, stats.Chunks, stats.Embedded, stats.Upserted, stats.Dropped)
			return nil
		},
	}
	cmd.Flags().StringVar(&recordsPath, "records", "", "JSON file of normalized source records")
	cmd.Flags().BoolVar(&reset, "reset", false, "drop the existing corpus first")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var recordsPath, issuesPath, outPath string
	var top int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate evidence-backed records for reported field issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := source.LoadIssues(issuesPath)
			if err != nil {
				return err
			}
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if recordsPath != "" {
				if _, err := indexFromFile(ctx, p, recordsPath); err != nil {
					return err
				}
			}
			records, evidence, err := p.Generate(ctx, issues)
			if err != nil {
				return err
			}
			if top > 0 {
				records = normalize.TopByRPN(records, top)
			}
			fmt.Printf("Generated %d records for %d issues.\n", len(records), len(issues))

			data, err := workbook.NewWriter().Write(records, evidence, scopeOf(issues))
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Workbook written to %s.\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&recordsPath, "records", "", "JSON file of source records to index before generating (required with the in-memory store)")
	cmd.Flags().StringVar(&issuesPath, "issues", "", "JSON file of reported field issues")
	cmd.Flags().StringVarP(&outPath, "out", "o", "dfmea.zip", "output workbook path")
	cmd.Flags().IntVar(&top, "top", 0, "keep only the N highest-RPN records (0 keeps all)")
	_ = cmd.MarkFlagRequired("issues")
	return cmd
}

func newReviewCmd() *cobra.Command {
	var recordsPath, issuesPath string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Generate records and review them interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := source.LoadIssues(issuesPath)
			if err != nil {
				return err
			}
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if recordsPath != "" {
				if _, err := indexFromFile(ctx, p, recordsPath); err != nil {
					return err
				}
			}
			records, evidence, err := p.Generate(ctx, issues)
			if err != nil {
				return err
			}
			model := tui.New(records, evidence, scopeOf(issues))
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&recordsPath, "records", "", "JSON file of source records to index before generating")
	cmd.Flags().StringVar(&issuesPath, "issues", "", "JSON file of reported field issues")
	_ = cmd.MarkFlagRequired("issues")
	return cmd
}

func indexFromFile(ctx context.Context, p *service.Pipeline, path string) (service.IndexStats, error) {
	records, err := source.LoadRecords(path)
	if err != nil {
		return service.IndexStats{}, err
	}
	return p.Index(ctx, records)
}

// scopeOf takes the review scope from the first issue; all issues in one
// run are expected to share it.
func scopeOf(issues []domain.ReportedIssue) domain.Scope {
	if len(issues) == 0 {
		return domain.Scope{}
	}
	return domain.Scope{Product: issues[0].Product, Subassembly: issues[0].Subassembly}
}

// buildPipeline assembles the configured embedder, vector index and
// completion client into a pipeline.
func buildPipeline() (*service.Pipeline, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "local", "":
		emb = local.NewEmbedder(cfg.Embedder.LocalDimension)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", cfg.Embedder.Type)
	}

	var index domain.VectorIndex
	switch cfg.VectorStore.Type {
	case "memory", "":
		index = memory.NewStore()
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		store, err := qdrant.NewStore(qdrant.Config{
			URL:           cfg.VectorStore.Qdrant.URL,
			APIKeyEnv:     cfg.VectorStore.Qdrant.APIKeyEnv,
			Collection:    cfg.VectorStore.Qdrant.Collection,
			SessionSuffix: cfg.VectorStore.Qdrant.SessionSuffix,
			Timeout:       time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant init: %w", err)
		}
		index = store
	default:
		return nil, fmt.Errorf("unknown vector store type: %s", cfg.VectorStore.Type)
	}

	completer, err := completion.NewClient(completion.Config{
		BaseURL:     cfg.Completion.BaseURL,
		APIKeyEnv:   cfg.Completion.APIKeyEnv,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		Timeout:     time.Duration(cfg.Completion.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	policy := retry.Default(embedding.IsTransient)
	if cfg.Embedder.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Embedder.MaxAttempts
	}
	batcher := embedding.NewBatcher(emb, embedding.Config{
		BatchSize: cfg.Embedder.BatchSize,
		Cooldown:  time.Duration(cfg.Embedder.CooldownSecs * float64(time.Second)),
		Retry:     policy,
	}, log)
	synthesizer := synth.New(emb, index, completer, log, synth.Config{
		TopK:           cfg.Generation.TopK,
		ScoreThreshold: cfg.Generation.ScoreThreshold,
		MinHits:        cfg.Generation.MinHits,
	})
	return service.NewPipeline(chunker.New(cfg.Chunking), batcher, index, synthesizer, log), nil
}
