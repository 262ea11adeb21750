// Package tripflow - tool.go
// Defines the Tool interface the agent loop executes via function calling.
package tripflow

import "github.com/openai/openai-go"

type Tool interface {
	Name() string
	Description() string
	OpenAI() openai.ChatCompletionToolParam
	Execute(args map[string]interface{}) (string, error)
}
