package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daniel-butler/entity-meta/pkg/cache"
	"github.com/daniel-butler/entity-meta/pkg/chunker"
	"github.com/daniel-butler/entity-meta/pkg/config"
	"github.com/daniel-butler/entity-meta/pkg/enricher"
	"github.com/daniel-butler/entity-meta/pkg/logging"
	"github.com/daniel-butler/entity-meta/pkg/metadata"
	"github.com/daniel-butler/entity-meta/pkg/metrics"
	"github.com/daniel-butler/entity-meta/pkg/ner"
)

var Version = "dev"

var errUsage = errors.New("expected exactly one input file")

// reportedError is an error that has already been logged.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// recognizerFactory builds the recognizer for the configured backend.
type recognizerFactory func(ctx context.Context, cfg config.Config) (ner.Recognizer, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, newRecognizer)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, factory recognizerFactory) int {
	cmd := newRootCmd(stdout, stderr, factory)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stdout, "Usage: %s <filename>\n", cmd.Name())
		return 1
	case errors.As(err, new(reportedError)):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func newRootCmd(stdout, stderr io.Writer, factory recognizerFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity-meta <filename>",
		Short: "Extract ranked named entities from a document as search-index metadata",
		Long: `entity-meta sends a text document, in chunks, to an entity recognition
service and prints the most frequent entities of each category as a JSON
attribute document for a search index.

Environment:
  ENTITY_META_*     Any flag, e.g. ENTITY_META_MIN_SCORE=0.9
  OPENAI_API_KEY    API key for the openai backend
  AWS_*             Credentials and region for the comprehend backend`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, args[0], stdout, stderr, factory)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runEnrich(cmd *cobra.Command, filename string, stdout, stderr io.Writer, factory recognizerFactory) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		JSON:  cfg.LogJSON,
		Out:   stderr,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	m := metrics.New()
	if cfg.MetricsFile != "" {
		defer func() {
			if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.WithError(err).Warn("Failed to write metrics")
			}
		}()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	recognizer, err := factory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating %s recognizer: %w", cfg.Backend, err)
	}

	if cfg.Cache != "" {
		store, err := openCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()
		recognizer = cache.NewRecognizer(recognizer, store, cfg.Backend, m)
	}

	logger.WithFields(logrus.Fields{
		"file":    filename,
		"backend": cfg.Backend,
		"bytes":   len(data),
	}).Info("Processing document")

	e := enricher.New(recognizer,
		enricher.WithChunker(chunker.MustNew(cfg.ChunkerConfig())),
		enricher.WithAggregateConfig(cfg.AggregateConfig()),
		enricher.WithLanguage(cfg.Language),
		enricher.WithLogger(logger),
		enricher.WithMetrics(m),
	)

	result, err := e.Run(ctx, string(data))
	if err != nil {
		var extractErr *enricher.ExtractError
		if errors.As(err, &extractErr) {
			logger.WithError(extractErr.Err).WithField("chunk", extractErr.Chunk).
				Error("Exiting - detect_entities terminated with exception")
			return reportedError{err}
		}
		return err
	}

	doc := metadata.Build(result, metadata.SourceURI(cfg.SourceBaseURL, filename))
	return metadata.Write(stdout, doc, metadata.WithASCII(cfg.ASCII))
}

func newRecognizer(ctx context.Context, cfg config.Config) (ner.Recognizer, error) {
	switch cfg.Backend {
	case config.BackendComprehend:
		return ner.NewComprehend(ctx, cfg.Region)
	case config.BackendOpenAI:
		return ner.NewOpenAI(cfg.OpenAIAPIKey,
			ner.WithOpenAIModel(cfg.OpenAIModel),
			ner.WithOpenAIBaseURL(cfg.OpenAIBaseURL),
		)
	case config.BackendProse:
		return ner.NewProse(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openCache(path string) (*cache.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return cache.NewStore(path)
}
