package ner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI recognizes entities by prompting a chat-completion model.
type OpenAI struct {
	client *openai.Client
	model  string
}

type openAISettings struct {
	baseURL string
	model   string
}

// OpenAIOption configures an OpenAI recognizer.
type OpenAIOption func(*openAISettings)

// WithOpenAIModel sets the chat model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *openAISettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithOpenAIBaseURL points the client at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(s *openAISettings) {
		s.baseURL = baseURL
	}
}

// NewOpenAI creates an OpenAI recognizer.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	s := openAISettings{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  s.model,
	}, nil
}

func openAIPrompt(languageCode string) string {
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = string(c)
	}
	return fmt.Sprintf(`You are a named entity recognizer. The user message is a fragment of a document in language %q.
Return every named entity in it as a JSON object of the form
{"entities":[{"text":"<exact span>","type":"<label>","score":<confidence between 0 and 1>}]}
Allowed labels: %s.
Copy each span exactly as it appears. Return {"entities":[]} if there are none.`,
		languageCode, strings.Join(labels, ", "))
}

// DetectEntities implements Recognizer. Entities with labels outside the
// known categories are dropped.
func (o *OpenAI) DetectEntities(ctx context.Context, text, languageCode string) ([]Entity, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAIPrompt(languageCode)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}

	return parseOpenAIEntities(resp.Choices[0].Message.Content)
}

func parseOpenAIEntities(content string) ([]Entity, error) {
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("openai response is not valid JSON: %.80q", content)
	}

	entities := []Entity{}
	gjson.Get(content, "entities").ForEach(func(_, v gjson.Result) bool {
		category, ok := ParseCategory(v.Get("type").String())
		if !ok {
			return true
		}
		entities = append(entities, Entity{
			Text:     v.Get("text").String(),
			Category: category,
			Score:    v.Get("score").Float(),
		})
		return true
	})
	return entities, nil
}
