package ner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// comprehendAPI is the subset of the Comprehend client used here.
type comprehendAPI interface {
	DetectEntities(ctx context.Context, params *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
}

// Comprehend recognizes entities with Amazon Comprehend.
type Comprehend struct {
	client comprehendAPI
}

// NewComprehend creates a Comprehend recognizer from the default AWS
// credential chain. An empty region falls back to the SDK's resolution.
func NewComprehend(ctx context.Context, region string) (*Comprehend, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Comprehend{client: comprehend.NewFromConfig(cfg)}, nil
}

// DetectEntities implements Recognizer.
func (c *Comprehend) DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error) {
	out, err := c.client.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(languageCode),
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend detect entities: %w", err)
	}

	entities := make([]Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		entities = append(entities, Entity{
			Text:     aws.ToString(e.Text),
			Category: Category(e.Type),
			Score:    float64(aws.ToFloat32(e.Score)),
		})
	}
	return entities, nil
}
