package tripflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

// scriptedLLM replays canned completions and records the request params.
type scriptedLLM struct {
	responses []string
	calls     int
	params    []openai.ChatCompletionNewParams
}

func (s *scriptedLLM) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	s.params = append(s.params, params)
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("scripted LLM exhausted after %d calls", s.calls)
	}
	raw := s.responses[s.calls]
	s.calls++

	var completion openai.ChatCompletion
	if err := json.Unmarshal([]byte(raw), &completion); err != nil {
		return nil, fmt.Errorf("bad scripted completion: %w", err)
	}
	return &completion, nil
}

func plainCompletion(content string) string {
	msg := map[string]any{
		"choices": []any{map[string]any{
			"message": map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 20},
	}
	raw, _ := json.Marshal(msg)
	return string(raw)
}

func toolCallCompletion(toolName string, args map[string]any) string {
	rawArgs, _ := json.Marshal(args)
	msg := map[string]any{
		"choices": []any{map[string]any{
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id":   "call_1",
					"type": "function",
					"function": map[string]any{
						"name":      toolName,
						"arguments": string(rawArgs),
					},
				}},
			},
		}},
		"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 30},
	}
	raw, _ := json.Marshal(msg)
	return string(raw)
}

func newTestBackend(t *testing.T) (*InMemoryBackend, *Agent) {
	t.Helper()
	backend := NewInMemoryBackend()
	agent := &Agent{
		Name:         "Marisol",
		SystemPrompt: "You are a travel agent for tropical destinations.",
		Personality:  "warm and concise",
	}
	if err := backend.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	return backend, agent
}

func TestSendMessagePlainReply(t *testing.T) {
	ctx := context.Background()
	backend, agent := newTestBackend(t)
	llm := &scriptedLLM{responses: []string{plainCompletion("¡Hola! ¿A dónde quieres viajar?")}}
	assistant := NewAssistant(llm, "gpt-4o-mini", backend, backend.Memories)

	reply, err := assistant.SendMessage(ctx, ChatRequest{
		AgentID: agent.ID,
		Phone:   "34600111222",
		Message: "Hola",
	})
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if reply.Message != "¡Hola! ¿A dónde quieres viajar?" {
		t.Fatalf("Unexpected reply %q", reply.Message)
	}
	if reply.SessionID == "" {
		t.Fatalf("Expected a session ID to be assigned")
	}
	if reply.Cost == nil || reply.Cost.InputTokens != 100 || reply.Cost.OutputTokens != 20 {
		t.Fatalf("Expected usage accounting, got %+v", reply.Cost)
	}

	lead, err := backend.FindOrCreateLead(ctx, agent.ID, "34600111222")
	if err != nil {
		t.Fatalf("Failed to resolve lead: %v", err)
	}
	convs, err := backend.GetConversations(ctx, agent.ID, &lead.ID, 10)
	if err != nil {
		t.Fatalf("Failed to load conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("Expected 1 persisted conversation, got %d", len(convs))
	}
	if convs[0].UserMessage != "Hola" || convs[0].AssistantMessage != reply.Message {
		t.Fatalf("Unexpected persisted conversation %+v", convs[0])
	}
}

func TestSendMessageExecutesTools(t *testing.T) {
	ctx := context.Background()
	backend, agent := newTestBackend(t)
	llm := &scriptedLLM{responses: []string{
		toolCallCompletion("remember_fact", map[string]any{
			"key":   "favorite_destination",
			"value": "Loves Bali beaches",
		}),
		plainCompletion("¡Apuntado! Bali es una gran elección."),
	}}
	assistant := NewAssistant(llm, "gpt-4o-mini", backend, backend.Memories)

	reply, err := assistant.SendMessage(ctx, ChatRequest{
		AgentID: agent.ID,
		Phone:   "34600111222",
		Message: "Me encanta Bali",
	})
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if !strings.Contains(reply.Message, "Bali") {
		t.Fatalf("Unexpected final reply %q", reply.Message)
	}
	if llm.calls != 2 {
		t.Fatalf("Expected 2 LLM calls (tool round + final), got %d", llm.calls)
	}

	results, err := backend.Memories.Search(ctx, MemorySearch{AgentID: agent.ID, Query: "Bali"})
	if err != nil {
		t.Fatalf("Failed to search memories: %v", err)
	}
	if len(results) != 1 || results[0].Key != "favorite_destination" {
		t.Fatalf("Expected the tool to store the memory, got %+v", results)
	}
}

func TestSendMessageInjectsMemories(t *testing.T) {
	ctx := context.Background()
	backend, agent := newTestBackend(t)
	if _, err := backend.Memories.Upsert(ctx, MemoryUpsert{
		AgentID:        agent.ID,
		Key:            "favorite_destination",
		Value:          "Loves Bali beaches",
		RelevanceScore: Float(0.9),
	}); err != nil {
		t.Fatalf("Failed to seed memory: %v", err)
	}

	llm := &scriptedLLM{responses: []string{plainCompletion("Bali it is!")}}
	assistant := NewAssistant(llm, "gpt-4o-mini", backend, backend.Memories)

	if _, err := assistant.SendMessage(ctx, ChatRequest{
		AgentID: agent.ID,
		Message: "Should I go back to Bali?",
	}); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}

	if len(llm.params) != 1 {
		t.Fatalf("Expected 1 LLM call, got %d", len(llm.params))
	}
	first := llm.params[0].Messages[0]
	if first.OfDeveloper == nil || param.IsOmitted(first.OfDeveloper.Content.OfString) {
		t.Fatalf("Expected the first message to be the developer prompt")
	}
	prompt := first.OfDeveloper.Content.OfString.Value
	if !strings.Contains(prompt, "Known facts about this traveler") {
		t.Fatalf("Expected recalled memories in the prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "Loves Bali beaches") {
		t.Fatalf("Expected the memory value in the prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, agent.SystemPrompt) {
		t.Fatalf("Expected the agent system prompt, got %q", prompt)
	}
}

func TestSendMessageReplaysHistory(t *testing.T) {
	ctx := context.Background()
	backend, agent := newTestBackend(t)
	llm := &scriptedLLM{responses: []string{
		plainCompletion("first reply"),
		plainCompletion("second reply"),
	}}
	assistant := NewAssistant(llm, "gpt-4o-mini", backend, backend.Memories)

	if _, err := assistant.SendMessage(ctx, ChatRequest{
		AgentID: agent.ID, Phone: "34600111222", Message: "first question",
	}); err != nil {
		t.Fatalf("Failed to send first message: %v", err)
	}
	if _, err := assistant.SendMessage(ctx, ChatRequest{
		AgentID: agent.ID, Phone: "34600111222", Message: "second question",
	}); err != nil {
		t.Fatalf("Failed to send second message: %v", err)
	}

	second := llm.params[1].Messages
	// developer prompt, replayed exchange, new user message
	if len(second) != 4 {
		t.Fatalf("Expected 4 messages in the second request, got %d", len(second))
	}
	if second[1].OfUser == nil || second[1].OfUser.Content.OfString.Value != "first question" {
		t.Fatalf("Expected the first exchange to be replayed")
	}
	if second[2].OfAssistant == nil {
		t.Fatalf("Expected the first reply to be replayed")
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	backend, agent := newTestBackend(t)
	llm := &scriptedLLM{}
	assistant := NewAssistant(llm, "gpt-4o-mini", backend, backend.Memories)

	t.Run("EmptyMessage", func(t *testing.T) {
		_, err := assistant.SendMessage(ctx, ChatRequest{AgentID: agent.ID, Message: "  "})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("Expected validation error, got %v", err)
		}
	})

	t.Run("UnknownAgent", func(t *testing.T) {
		_, err := assistant.SendMessage(ctx, ChatRequest{AgentID: uuid.New(), Message: "hola"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected not found error, got %v", err)
		}
	})
}
