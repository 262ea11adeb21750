// Package tripflow - session.go
// Per-conversation state. A session carries the message history being
// assembled for one inbound message plus the token usage it accumulates.

package tripflow

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Session holds ephemeral conversation data for a single exchange.
type Session struct {
	ID      string
	AgentID uuid.UUID
	LeadID  *uuid.UUID

	History *MessageList

	InputTokens  int64
	OutputTokens int64
}

// NewSession constructs a session with a fresh nanoid. When sessionID is
// non-empty the caller is resuming an existing session and the ID is reused.
func NewSession(sessionID string, agentID uuid.UUID, leadID *uuid.UUID) (*Session, error) {
	if sessionID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		sessionID = id
	}
	return &Session{
		ID:      sessionID,
		AgentID: agentID,
		LeadID:  leadID,
		History: NewMessageList(),
	}, nil
}

// Context returns ctx annotated with the session and agent identifiers so
// the LLM client can tag outgoing requests.
func (s *Session) Context(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, ContextKey("sessionID"), s.ID)
	ctx = context.WithValue(ctx, ContextKey("agentID"), s.AgentID.String())
	return ctx
}

// AddUsage accumulates token counts from one completion.
func (s *Session) AddUsage(inputTokens, outputTokens int64) {
	s.InputTokens += inputTokens
	s.OutputTokens += outputTokens
}

// Cost returns the dollar cost of the session so far, when the model has
// a known price.
func (s *Session) Cost(model string) (*CostDetails, bool) {
	return EstimateCost(model, s.InputTokens, s.OutputTokens)
}
