package tripflow

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a configured chatbot. Deleting an agent cascades to its leads,
// conversations and memories at the storage layer.
type Agent struct {
	ID             uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	Name           string    `gorm:"column:name" json:"name"`
	SystemPrompt   string    `gorm:"column:system_prompt" json:"system_prompt"`
	WelcomeMessage string    `gorm:"column:welcome_message" json:"welcome_message"`
	Personality    string    `gorm:"column:personality" json:"personality"`
	UseEmojis      bool      `gorm:"column:use_emojis" json:"use_emojis"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// Lead is the human counterpart on the other side of a conversation,
// usually identified by their messaging-channel phone number.
type Lead struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	AgentID   uuid.UUID `gorm:"column:agent_id" json:"agent_id"`
	Phone     string    `gorm:"column:phone" json:"phone"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Lead) TableName() string {
	return "leads"
}

// Conversation is one user/assistant exchange within a session.
type Conversation struct {
	ID               uuid.UUID  `gorm:"column:id;primaryKey" json:"id"`
	SessionID        string     `gorm:"column:session_id" json:"session_id"`
	AgentID          uuid.UUID  `gorm:"column:agent_id" json:"agent_id"`
	LeadID           *uuid.UUID `gorm:"column:lead_id" json:"lead_id,omitempty"`
	UserMessage      string     `gorm:"column:user_message" json:"user_message"`
	AssistantMessage string     `gorm:"column:assistant_message" json:"assistant_message"`
	InputTokens      int64      `gorm:"column:input_tokens" json:"input_tokens"`
	OutputTokens     int64      `gorm:"column:output_tokens" json:"output_tokens"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}
