package ner

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
)

// proseLabels maps prose's entity labels onto categories. Anything else
// becomes Other.
var proseLabels = map[string]Category{
	"PERSON": Person,
	"GPE":    Location,
	"ORG":    Organization,
}

// Prose recognizes entities locally with prose's built-in English model.
// prose reports no confidence, so every entity scores 1.
type Prose struct{}

// NewProse creates a Prose recognizer.
func NewProse() *Prose {
	return &Prose{}
}

// DetectEntities implements Recognizer.
func (p *Prose) DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if languageCode != "" && languageCode != "en" {
		return nil, fmt.Errorf("prose: unsupported language %q", languageCode)
	}
	if strings.TrimSpace(text) == "" {
		return []Entity{}, nil
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("prose: %w", err)
	}

	entities := []Entity{}
	for _, ent := range doc.Entities() {
		entities = append(entities, Entity{
			Text:     ent.Text,
			Category: proseCategory(ent.Label),
			Score:    1,
		})
	}
	return entities, nil
}

func proseCategory(label string) Category {
	if c, ok := proseLabels[label]; ok {
		return c
	}
	return Other
}
