// Package provider wires the hosted embedding and completion service behind
// small interfaces the rest of the repo consumes, with transient-error retry
// at every call boundary.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// Message is one chat turn handed to the completion service.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Embedder computes fixed-length vectors for text. Dimensions is stable for
// the lifetime of the embedder and is what the vector index is created with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Completer produces a completion for a message list. Structured completions
// constrain the output to a JSON schema.
type Completer interface {
	Complete(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (string, error)
	CompleteStructured(ctx context.Context, model string, schemaName string, schema map[string]interface{}, instructions, input string, maxTokens int) (string, error)
}

// Client implements Embedder and Completer over the OpenAI API.
type Client struct {
	api            *openai.Client
	embeddingModel string
	dimensions     int
	log            *log.Logger
}

// Options configures a Client. EmbeddingModel and Dimensions are required;
// BaseURL is only set when talking to a compatible proxy.
type Options struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Dimensions     int
	Logger         *log.Logger
}

// New validates opts and builds a Client. A missing API key is a
// configuration error and fails here, at startup, rather than on first call.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("provider.New: APIKey is empty")
	}
	if opts.EmbeddingModel == "" {
		return nil, errors.New("provider.New: EmbeddingModel is empty")
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("provider.New: Dimensions must be > 0, got %d", opts.Dimensions)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	api := openai.NewClient(reqOpts...)
	return &Client{
		api:            &api,
		embeddingModel: opts.EmbeddingModel,
		dimensions:     opts.Dimensions,
		log:            logger.With("component", "provider"),
	}, nil
}

// Dimensions returns the vector length the configured embedding model emits.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed computes the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch computes embeddings for texts in one request, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp *openai.CreateEmbeddingResponse
	err := withRetry(ctx, c.log, func() error {
		var callErr error
		resp, callErr = c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("EmbedBatch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("EmbedBatch: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("EmbedBatch: embedding %d has dimension %d, want %d", i, len(d.Embedding), c.dimensions)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// Complete sends a message list to the completion service and returns the
// response text.
func (c *Client) Complete(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (string, error) {
	if model == "" {
		return "", errors.New("Complete: model is empty")
	}
	if len(msgs) == 0 {
		return "", errors.New("Complete: no messages")
	}

	params := responses.ResponseNewParams{
		Model:       model,
		Temperature: openai.Float(temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: inputItems(msgs),
		},
	}
	if maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(maxTokens))
	}

	var resp *responses.Response
	err := withRetry(ctx, c.log, func() error {
		var callErr error
		resp, callErr = c.api.Responses.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("Complete: %w", err)
	}
	return resp.OutputText(), nil
}

// CompleteStructured sends input under instructions and constrains the reply
// to the given JSON schema, returning the raw JSON text.
func (c *Client) CompleteStructured(ctx context.Context, model string, schemaName string, schema map[string]interface{}, instructions, input string, maxTokens int) (string, error) {
	if model == "" {
		return "", errors.New("CompleteStructured: model is empty")
	}
	if schemaName == "" || schema == nil {
		return "", errors.New("CompleteStructured: schema is required")
	}

	params := responses.ResponseNewParams{
		Model:        model,
		Instructions: openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		},
	}
	if maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(maxTokens))
	}

	var resp *responses.Response
	err := withRetry(ctx, c.log, func() error {
		var callErr error
		resp, callErr = c.api.Responses.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("CompleteStructured: %w", err)
	}
	return resp.OutputText(), nil
}

func inputItems(msgs []Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(msgs))
	for _, m := range msgs {
		role := responses.EasyInputMessageRoleUser
		switch m.Role {
		case "system":
			role = responses.EasyInputMessageRoleSystem
		case "assistant":
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}
	return items
}
