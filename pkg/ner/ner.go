// Package ner defines entity observations and the recognizers that produce them.
package ner

import (
	"context"
	"strings"
)

// Category is one of the fixed entity labels a recognizer can assign.
type Category string

const (
	CommercialItem Category = "COMMERCIAL_ITEM"
	Date           Category = "DATE"
	Event          Category = "EVENT"
	Location       Category = "LOCATION"
	Organization   Category = "ORGANIZATION"
	Other          Category = "OTHER"
	Person         Category = "PERSON"
	Quantity       Category = "QUANTITY"
	Title          Category = "TITLE"
)

// categories is sorted lexicographically.
var categories = [...]Category{
	CommercialItem,
	Date,
	Event,
	Location,
	Organization,
	Other,
	Person,
	Quantity,
	Title,
}

// Categories returns every known category in lexicographic order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories[:])
	return out
}

// ParseCategory maps a service label to a Category. Surrounding whitespace
// and letter case are ignored.
func ParseCategory(label string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(label)))
	return c, c.Valid()
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// Entity is a single recognized span of text.
type Entity struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Score    float64  `json:"score"` // confidence in [0,1]
}

// Recognizer extracts entities from one piece of text.
type Recognizer interface {
	DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, text, languageCode string) ([]Entity, error)

// DetectEntities calls f.
func (f RecognizerFunc) DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error) {
	return f(ctx, text, languageCode)
}
