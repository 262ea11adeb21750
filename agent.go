// Package tripflow provides the Assistant orchestrator, which combines the
// LLM, the memory store and the conversation history to answer a lead.
package tripflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
)

var ignErr *IgnorableError
var retErr *RetryableError

// maxToolRounds bounds the tool-calling loop so a confused model cannot
// spin forever.
const maxToolRounds = 8

// historyWindow is how many past exchanges are replayed into the prompt.
const historyWindow = 10

// Assistant orchestrates calls to the LLM, uses Skills/Tools, and
// determines how to respond on behalf of a configured agent.
type Assistant struct {
	llm      LLM
	model    string
	storage  Storage
	memories MemoryStore
	logger   *slog.Logger
}

func NewAssistant(llm LLM, model string, storage Storage, memories MemoryStore) *Assistant {
	return &Assistant{
		llm:      llm,
		model:    model,
		storage:  storage,
		memories: memories,
		logger:   slog.Default(),
	}
}

func (a *Assistant) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

// ChatRequest is one inbound message routed to an agent. Exactly one of
// LeadID or Phone identifies the lead; both empty means an anonymous chat.
type ChatRequest struct {
	AgentID   uuid.UUID
	SessionID string
	LeadID    *uuid.UUID
	Phone     string
	Message   string
}

// ChatReply is the assistant's answer plus accounting for the exchange.
type ChatReply struct {
	SessionID string       `json:"session_id"`
	Message   string       `json:"message"`
	Cost      *CostDetails `json:"cost,omitempty"`
}

// SendMessage runs the full pipeline for one user message: resolve the
// lead, recall memories, replay history, loop through tool calls and
// persist the exchange.
func (a *Assistant) SendMessage(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, validationErr("message is required")
	}

	agent, err := a.storage.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	leadID := req.LeadID
	if leadID == nil && req.Phone != "" {
		lead, err := a.storage.FindOrCreateLead(ctx, agent.ID, req.Phone)
		if err != nil {
			return nil, err
		}
		leadID = &lead.ID
	}

	session, err := NewSession(req.SessionID, agent.ID, leadID)
	if err != nil {
		return nil, err
	}
	ctx = session.Context(ctx)

	if err := a.buildHistory(ctx, session, agent, req.Message); err != nil {
		return nil, err
	}

	remember := NewRememberTool(ctx, a.memories, agent.ID, leadID)
	recall := NewRecallTool(ctx, a.memories, agent.ID)
	skill := MemorySkill(remember, recall)

	reply, err := a.runToolLoop(ctx, session, &skill)
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		SessionID:        session.ID,
		AgentID:          agent.ID,
		LeadID:           leadID,
		UserMessage:      req.Message,
		AssistantMessage: reply,
		InputTokens:      session.InputTokens,
		OutputTokens:     session.OutputTokens,
	}
	if err := a.storage.SaveConversation(ctx, conv); err != nil {
		a.logger.Error("failed to persist conversation", "error", err, "sessionID", session.ID)
	}

	cost, _ := session.Cost(a.model)
	return &ChatReply{
		SessionID: session.ID,
		Message:   reply,
		Cost:      cost,
	}, nil
}

// buildHistory assembles the developer prompt, the memory block, the
// replayed past exchanges and the new user message.
func (a *Assistant) buildHistory(ctx context.Context, session *Session, agent *Agent, userMessage string) error {
	memoryBlock, err := a.memoryBlock(ctx, agent.ID, userMessage)
	if err != nil {
		return err
	}

	if session.LeadID != nil {
		convs, err := a.storage.GetConversations(ctx, agent.ID, session.LeadID, historyWindow)
		if err != nil {
			return err
		}
		// newest first from storage, replay oldest first
		for i := len(convs) - 1; i >= 0; i-- {
			session.History.Add(UserMessage(convs[i].UserMessage))
			session.History.Add(AssistantMessage(convs[i].AssistantMessage))
		}
	}

	session.History.Add(UserMessage(userMessage))
	session.History.AddFirstDeveloperMessage(DeveloperMessage(buildSystemPrompt(agent, memoryBlock)))
	return nil
}

// memoryBlock recalls facts relevant to the user message and renders them
// as a prompt section. An empty result renders to "".
func (a *Assistant) memoryBlock(ctx context.Context, agentID uuid.UUID, userMessage string) (string, error) {
	memories, err := a.memories.Search(ctx, MemorySearch{
		AgentID: agentID,
		Query:   userMessage,
	})
	if err != nil {
		return "", fmt.Errorf("recalling memories: %w", err)
	}
	if len(memories) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Known facts about this traveler:\n")
	for _, mem := range memories {
		fmt.Fprintf(&b, "- %s: %s\n", mem.Key, mem.Value)
	}
	return b.String(), nil
}

func buildSystemPrompt(agent *Agent, memoryBlock string) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	if agent.Personality != "" {
		fmt.Fprintf(&b, "\n\nPersonality: %s", agent.Personality)
	}
	if agent.UseEmojis {
		b.WriteString("\nUse emojis where they feel natural.")
	} else {
		b.WriteString("\nDo not use emojis.")
	}
	if memoryBlock != "" {
		b.WriteString("\n\n")
		b.WriteString(memoryBlock)
	}
	return b.String()
}

// runToolLoop calls the model repeatedly, executing requested tools and
// feeding results back, until the model answers with plain content.
func (a *Assistant) runToolLoop(ctx context.Context, session *Session, skill *Skill) (string, error) {
	for round := 0; round < maxToolRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Messages: session.History.All(),
			Model:    a.model,
		}
		if tools := skill.GetTools(); len(tools) > 0 {
			params.Tools = tools
		}

		completion, err := a.llm.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}
		session.AddUsage(completion.Usage.PromptTokens, completion.Usage.CompletionTokens)

		message := completion.Choices[0].Message
		session.History.Add(message.ToParam())

		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}

		for _, toolCall := range message.ToolCalls {
			a.executeToolCall(session, skill, toolCall.ID, toolCall.Function.Name, toolCall.Function.Arguments)
		}
	}
	return "", fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

func (a *Assistant) executeToolCall(session *Session, skill *Skill, toolCallID, toolName, rawArguments string) {
	tool, err := skill.GetTool(toolName)
	if err != nil {
		a.logger.Error("unknown tool requested", "tool", toolName)
		session.History.Add(MessageWhenToolError(toolCallID))
		return
	}

	arguments := map[string]interface{}{}
	if err := json.Unmarshal([]byte(rawArguments), &arguments); err != nil {
		a.logger.Error("failed to unmarshal tool arguments", "tool", tool.Name(), "error", err)
		session.History.Add(MessageWhenToolErrorWithRetry(err.Error(), toolCallID))
		return
	}

	a.logger.Info("executing tool", "tool", tool.Name(), "arguments", rawArguments)
	output, err := tool.Execute(arguments)
	if err != nil {
		a.logger.Error("tool execution failed", "tool", tool.Name(), "error", err)
		switch {
		case errors.As(err, &ignErr):
			session.History.Add(MessageWhenToolError(toolCallID))
		case errors.As(err, &retErr):
			session.History.Add(MessageWhenToolErrorWithRetry(err.Error(), toolCallID))
		default:
			session.History.Add(MessageWhenToolError(toolCallID))
		}
		return
	}
	session.History.Add(openai.ToolMessage(output, toolCallID))
}

func MessageWhenToolError(toolCallID string) openai.ChatCompletionMessageParamUnion {
	return openai.ToolMessage("Error occurred while running. Do not retry", toolCallID)
}

func MessageWhenToolErrorWithRetry(errorString string, toolCallID string) openai.ChatCompletionMessageParamUnion {
	return openai.ToolMessage(fmt.Sprintf("Error: %s.\nRetry", errorString), toolCallID)
}
