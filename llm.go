package tripflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Define a custom type for context keys
type ContextKey string

// LLM is the minimal contract the chat pipeline needs from a
// language-model provider: one non-streaming chat completion call.
type LLM interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// OpenAILLM is the openai-go backed LLM. BaseURL is optional and enables
// OpenAI-compatible gateways.
type OpenAILLM struct {
	Model  string
	client openai.Client
}

func NewOpenAILLM(apiKey, baseURL, model string) *OpenAILLM {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAILLM{
		Model:  model,
		client: openai.NewClient(opts...),
	}
}

func optsWithIDs(ctx context.Context, opts []option.RequestOption) []option.RequestOption {
	if sessionID, ok := ctx.Value(ContextKey("sessionID")).(string); ok {
		opts = append(opts, option.WithJSONSet("custom_identifier", sessionID))
	}
	if agentID, ok := ctx.Value(ContextKey("agentID")).(string); ok {
		opts = append(opts, option.WithJSONSet("customer_identifier", agentID))
	}
	return opts
}

func (c *OpenAILLM) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	opts := optsWithIDs(ctx, nil)
	return c.client.Chat.Completions.New(ctx, params, opts...)
}

// GenerateSchema reflects T into a JSON schema for tool parameters and
// structured outputs.
func GenerateSchema[T any]() openai.FunctionParameters {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema: %v", err))
	}
	var params openai.FunctionParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		panic(fmt.Sprintf("failed to unmarshal schema: %v", err))
	}
	return params
}
