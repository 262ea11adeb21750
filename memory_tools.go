// Package tripflow - memory_tools.go
// The function-calling tools that let the LLM read and write the memory
// store mid-conversation. Tools are constructed per request so they carry
// the request context and the agent/lead scope.

package tripflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
)

type rememberFactArgs struct {
	Key            string   `json:"key" jsonschema:"description=Short snake_case label for the fact; writing the same key again overwrites the fact"`
	Value          string   `json:"value" jsonschema:"description=The fact to remember; plain text"`
	RelevanceScore *float64 `json:"relevance_score,omitempty" jsonschema:"description=How important the fact is; defaults to 1.0"`
	ExpiresInDays  int      `json:"expires_in_days,omitempty" jsonschema:"description=Days until the fact should be forgotten; 0 means never"`
}

// RememberTool upserts a fact about the current lead.
type RememberTool struct {
	ctx      context.Context
	memories MemoryStore
	agentID  uuid.UUID
	leadID   *uuid.UUID
}

func NewRememberTool(ctx context.Context, memories MemoryStore, agentID uuid.UUID, leadID *uuid.UUID) *RememberTool {
	return &RememberTool{ctx: ctx, memories: memories, agentID: agentID, leadID: leadID}
}

func (t *RememberTool) Name() string {
	return "remember_fact"
}

func (t *RememberTool) Description() string {
	return "Store a fact about the user worth remembering for future conversations, like preferences, travel dates or past trips."
}

func (t *RememberTool) OpenAI() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  GenerateSchema[rememberFactArgs](),
		},
	}
}

func (t *RememberTool) Execute(args map[string]interface{}) (string, error) {
	var parsed rememberFactArgs
	if err := decodeArgs(args, &parsed); err != nil {
		return "", &RetryableError{Message: err.Error()}
	}
	if strings.TrimSpace(parsed.Key) == "" || strings.TrimSpace(parsed.Value) == "" {
		return "", &RetryableError{Message: "both key and value are required"}
	}

	in := MemoryUpsert{
		AgentID:        t.agentID,
		LeadID:         t.leadID,
		Key:            parsed.Key,
		Value:          parsed.Value,
		RelevanceScore: parsed.RelevanceScore,
		Metadata:       Metadata{"source": "conversation"},
	}
	if parsed.ExpiresInDays > 0 {
		exp := time.Now().AddDate(0, 0, parsed.ExpiresInDays)
		in.ExpiresAt = &exp
	}

	mem, err := t.memories.Upsert(t.ctx, in)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return "", &RetryableError{Message: err.Error()}
		}
		return "", err
	}
	return fmt.Sprintf("Remembered %q.", mem.Key), nil
}

type recallMemoriesArgs struct {
	Query string `json:"query" jsonschema:"description=Free-text description of what to look up"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of facts to return; defaults to 5"`
}

// RecallTool searches the agent's memories.
type RecallTool struct {
	ctx      context.Context
	memories MemoryStore
	agentID  uuid.UUID
}

func NewRecallTool(ctx context.Context, memories MemoryStore, agentID uuid.UUID) *RecallTool {
	return &RecallTool{ctx: ctx, memories: memories, agentID: agentID}
}

func (t *RecallTool) Name() string {
	return "recall_memories"
}

func (t *RecallTool) Description() string {
	return "Search previously stored facts about the user by free text."
}

func (t *RecallTool) OpenAI() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  GenerateSchema[recallMemoriesArgs](),
		},
	}
}

func (t *RecallTool) Execute(args map[string]interface{}) (string, error) {
	var parsed recallMemoriesArgs
	if err := decodeArgs(args, &parsed); err != nil {
		return "", &RetryableError{Message: err.Error()}
	}

	results, err := t.memories.Search(t.ctx, MemorySearch{
		AgentID: t.agentID,
		Query:   parsed.Query,
		Limit:   parsed.Limit,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return "", &RetryableError{Message: err.Error()}
		}
		return "", err
	}
	if len(results) == 0 {
		return "No stored facts matched.", nil
	}

	var b strings.Builder
	for _, mem := range results {
		fmt.Fprintf(&b, "- %s: %s\n", mem.Key, mem.Value)
	}
	return b.String(), nil
}

func decodeArgs(args map[string]interface{}, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
