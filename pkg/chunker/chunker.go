// Package chunker splits document text into windows that fit a single
// entity-recognition request.
package chunker

import (
	"fmt"
	"iter"
)

// Config holds chunking configuration.
type Config struct {
	// Size is the maximum number of characters (Unicode code points) per chunk.
	Size int
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{Size: 4000}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	return nil
}

// Chunker splits text into contiguous, non-overlapping windows.
// Windows are cut on character boundaries only; an entity spanning two
// windows is seen as two fragments.
type Chunker struct {
	config Config
}

// New creates a Chunker. Returns an error if the configuration is invalid.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: cfg}, nil
}

// MustNew creates a Chunker, panicking on invalid config.
func MustNew(cfg Config) *Chunker {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// NewDefault creates a Chunker with the default configuration.
func NewDefault() *Chunker {
	return MustNew(DefaultConfig())
}

// Size returns the configured maximum chunk size.
func (c *Chunker) Size() int {
	return c.config.Size
}

// Chunks returns the windows of text in order. The sequence is lazy and
// can be ranged over any number of times. Empty text yields nothing.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start, n := 0, 0
		for i := range text {
			if n == c.config.Size {
				if !yield(text[start:i]) {
					return
				}
				start, n = i, 0
			}
			n++
		}
		if start < len(text) {
			yield(text[start:])
		}
	}
}

// Split collects all chunks of text into a slice.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
