package enricher

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-butler/entity-meta/pkg/aggregate"
	"github.com/daniel-butler/entity-meta/pkg/chunker"
	"github.com/daniel-butler/entity-meta/pkg/metrics"
	"github.com/daniel-butler/entity-meta/pkg/ner"
)

// fakeRecognizer returns canned entities per call and records the requests.
type fakeRecognizer struct {
	responses [][]ner.Entity
	failOn    int // 1-based call number to fail on, 0 never
	calls     []string
	languages []string
}

func (f *fakeRecognizer) DetectEntities(_ context.Context, text, lang string) ([]ner.Entity, error) {
	f.calls = append(f.calls, text)
	f.languages = append(f.languages, lang)
	if f.failOn == len(f.calls) {
		return nil, errors.New("service unavailable")
	}
	if i := len(f.calls) - 1; i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestEnricher_SendsChunksInOrder(t *testing.T) {
	fake := &fakeRecognizer{}
	e := New(fake,
		WithChunker(chunker.MustNew(chunker.Config{Size: 5})),
		WithLanguage("de"),
		WithLogger(quietLogger()),
	)

	_, err := e.Run(context.Background(), "abcdefghijkl")
	require.NoError(t, err)

	assert.Equal(t, []string{"abcde", "fghij", "kl"}, fake.calls)
	assert.Equal(t, []string{"de", "de", "de"}, fake.languages)
}

func TestEnricher_AggregatesAcrossChunks(t *testing.T) {
	fake := &fakeRecognizer{
		responses: [][]ner.Entity{
			{{Text: "Einstein", Category: ner.Person, Score: 0.99}},
			{{Text: "EINSTEIN", Category: ner.Person, Score: 0.5}, {Text: "Bohr", Category: ner.Person, Score: 0.98}},
			{{Text: "einstein", Category: ner.Person, Score: 0.99}},
		},
	}
	m := metrics.New()
	e := New(fake,
		WithChunker(chunker.MustNew(chunker.Config{Size: 2})),
		WithAggregateConfig(aggregate.Config{MinScore: 0.97, MaxEntities: 2}),
		WithLogger(quietLogger()),
		WithMetrics(m),
	)

	result, err := e.Run(context.Background(), "xxyyzz")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Einstein", "Bohr"}, result.Selected(ner.Person))
	assert.Equal(t, []aggregate.Ranked{{Text: "EINSTEIN", Count: 3}, {Text: "BOHR", Count: 1}}, result.Ranked(ner.Person))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Chunks))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.EntitiesObserved.WithLabelValues("PERSON")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitiesAccepted.WithLabelValues("PERSON")))
}

func TestEnricher_FailsFast(t *testing.T) {
	fake := &fakeRecognizer{failOn: 2}
	e := New(fake,
		WithChunker(chunker.MustNew(chunker.Config{Size: 1})),
		WithLogger(quietLogger()),
	)

	result, err := e.Run(context.Background(), "abcd")
	require.Error(t, err)
	assert.Nil(t, result)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, 1, extractErr.Chunk)
	assert.Contains(t, err.Error(), "service unavailable")

	// Nothing after the failing chunk is requested.
	assert.Len(t, fake.calls, 2)
}

func TestEnricher_NoQualifyingEntities(t *testing.T) {
	fake := &fakeRecognizer{
		responses: [][]ner.Entity{{
			{Text: "Einstein", Category: ner.Person, Score: 0.5},
			{Text: "Ulm", Category: ner.Location, Score: 0.97},
		}},
	}
	e := New(fake, WithLogger(quietLogger()))

	result, err := e.Run(context.Background(), "Einstein was born in Ulm.")
	require.NoError(t, err)

	for _, c := range ner.Categories() {
		assert.NotNil(t, result.Selected(c))
		assert.Empty(t, result.Selected(c))
	}
}

func TestEnricher_SkipsUnknownCategories(t *testing.T) {
	fake := &fakeRecognizer{
		responses: [][]ner.Entity{{
			{Text: "Einstein", Category: ner.Person, Score: 0.99},
			{Text: "Ulm", Category: "GPE", Score: 0.99},
		}},
	}
	e := New(fake, WithLogger(quietLogger()))

	result, err := e.Run(context.Background(), "Einstein was born in Ulm.")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total())
}

func TestEnricher_EmptyDocument(t *testing.T) {
	fake := &fakeRecognizer{}
	e := New(fake, WithLogger(quietLogger()))

	result, err := e.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, fake.calls)
	assert.Equal(t, 0, result.Total())
}

func TestExtractError(t *testing.T) {
	cause := errors.New("throttled")
	err := &ExtractError{Chunk: 3, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, strings.Contains(err.Error(), "chunk 3"))
}
