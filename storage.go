package tripflow

import (
	"context"

	"github.com/google/uuid"
)

// Storage persists agents, leads and conversation history.
type Storage interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	UpdateAgent(ctx context.Context, agent *Agent) error
	DeleteAgent(ctx context.Context, id uuid.UUID) error

	// FindOrCreateLead resolves a messaging-channel contact to a lead,
	// creating it on first contact.
	FindOrCreateLead(ctx context.Context, agentID uuid.UUID, phone string) (*Lead, error)

	// GetConversations returns the most recent exchanges between the agent
	// and the lead, newest first.
	GetConversations(ctx context.Context, agentID uuid.UUID, leadID *uuid.UUID, limit int) ([]Conversation, error)
	SaveConversation(ctx context.Context, conv *Conversation) error

	// Hotel inventory is seeded out of band; the conversational surface
	// only reads it and writes bookings against it.
	CreateHotel(ctx context.Context, hotel *Hotel) error
	CreateRoomType(ctx context.Context, rt *RoomType) error

	// GetAvailability counts free rooms per room type for a date range.
	GetAvailability(ctx context.Context, q AvailabilityQuery) (*Availability, error)

	// CreateBooking reserves a room if one is free for the whole range,
	// returning ErrConflict when the room type is fully booked.
	CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID) error
}
