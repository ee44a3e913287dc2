// Package enricher runs a document through chunking, entity recognition and
// aggregation.
package enricher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daniel-butler/entity-meta/pkg/aggregate"
	"github.com/daniel-butler/entity-meta/pkg/chunker"
	"github.com/daniel-butler/entity-meta/pkg/metrics"
	"github.com/daniel-butler/entity-meta/pkg/ner"
)

// DefaultLanguage is the language code sent with every request.
const DefaultLanguage = "en"

// ExtractError reports a recognizer failure on one chunk. A run that returns
// it has produced no result.
type ExtractError struct {
	Chunk int // zero-based chunk index
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("detecting entities in chunk %d: %v", e.Chunk, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Enricher extracts and ranks the entities of one document.
type Enricher struct {
	recognizer ner.Recognizer
	chunker    *chunker.Chunker
	aggConfig  aggregate.Config
	language   string
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithChunker sets the chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(e *Enricher) {
		e.chunker = c
	}
}

// WithAggregateConfig sets the filter and ranking limits.
func WithAggregateConfig(cfg aggregate.Config) Option {
	return func(e *Enricher) {
		e.aggConfig = cfg
	}
}

// WithLanguage sets the language code sent to the recognizer.
func WithLanguage(code string) Option {
	return func(e *Enricher) {
		e.language = code
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Enricher) {
		e.logger = l
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// New creates an Enricher around r.
func New(r ner.Recognizer, opts ...Option) *Enricher {
	e := &Enricher{
		recognizer: r,
		chunker:    chunker.NewDefault(),
		aggConfig:  aggregate.DefaultConfig(),
		language:   DefaultLanguage,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logrus.New()
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	return e
}

// Run processes text chunk by chunk, in order. The first recognizer failure
// stops the run and is returned as an *ExtractError.
func (e *Enricher) Run(ctx context.Context, text string) (*aggregate.Result, error) {
	agg := aggregate.New(e.aggConfig)

	chunks := 0
	for chunk := range e.chunker.Chunks(text) {
		log := e.logger.WithField("chunk", chunks)

		start := time.Now()
		entities, err := e.recognizer.DetectEntities(ctx, chunk, e.language)
		e.metrics.RecognizerDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, &ExtractError{Chunk: chunks, Err: err}
		}
		e.metrics.Chunks.Inc()

		for _, ent := range entities {
			if !ent.Category.Valid() {
				log.WithField("category", ent.Category).Warn("Skipping entity with unknown category")
				continue
			}
			e.metrics.EntitiesObserved.WithLabelValues(ent.Category.String()).Inc()
			if agg.Add(ent) {
				e.metrics.EntitiesAccepted.WithLabelValues(ent.Category.String()).Inc()
			}
		}

		log.WithFields(logrus.Fields{
			"length":   len(chunk),
			"entities": len(entities),
			"elapsed":  time.Since(start).Round(time.Millisecond),
		}).Debug("Chunk processed")
		chunks++
	}

	result := agg.Result()
	e.logger.WithFields(logrus.Fields{
		"chunks":   chunks,
		"selected": result.Total(),
	}).Info("Entity extraction completed")

	return result, nil
}
