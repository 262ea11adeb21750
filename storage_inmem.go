// Package tripflow - storage_inmem.go
// A mutex-guarded Storage for tests and local development, paired with an
// InMemoryStore for memories so agent deletion can cascade.

package tripflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Storage = &InMemoryBackend{}

type InMemoryBackend struct {
	Memories *InMemoryStore

	mu        sync.RWMutex
	agents    map[uuid.UUID]*Agent
	leads     map[uuid.UUID]*Lead
	convs     []*Conversation
	hotels    map[uuid.UUID]*Hotel
	roomTypes map[uuid.UUID]*RoomType
	bookings  map[uuid.UUID]*Booking
}

func NewInMemoryBackend() *InMemoryBackend {
	b := &InMemoryBackend{
		Memories:  NewInMemoryStore(),
		agents:    make(map[uuid.UUID]*Agent),
		leads:     make(map[uuid.UUID]*Lead),
		hotels:    make(map[uuid.UUID]*Hotel),
		roomTypes: make(map[uuid.UUID]*RoomType),
		bookings:  make(map[uuid.UUID]*Booking),
	}
	// Memories reject writes for agents this backend doesn't know,
	// matching the foreign key the Postgres schema enforces.
	b.Memories.agentExists = b.hasAgent
	return b
}

func (b *InMemoryBackend) hasAgent(id uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.agents[id]
	return ok
}

func (b *InMemoryBackend) CreateAgent(ctx context.Context, agent *Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if _, ok := b.agents[agent.ID]; ok {
		return ErrConflict
	}
	now := time.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	cp := *agent
	b.agents[agent.ID] = &cp
	return nil
}

func (b *InMemoryBackend) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	agent, ok := b.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (b *InMemoryBackend) ListAgents(ctx context.Context) ([]Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	agents := make([]Agent, 0, len(b.agents))
	for _, agent := range b.agents {
		agents = append(agents, *agent)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
	return agents, nil
}

func (b *InMemoryBackend) UpdateAgent(ctx context.Context, agent *Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.agents[agent.ID]
	if !ok {
		return ErrNotFound
	}
	agent.CreatedAt = existing.CreatedAt
	agent.UpdatedAt = time.Now()
	cp := *agent
	b.agents[agent.ID] = &cp
	return nil
}

func (b *InMemoryBackend) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	if _, ok := b.agents[id]; !ok {
		b.mu.Unlock()
		return ErrNotFound
	}
	delete(b.agents, id)
	for leadID, lead := range b.leads {
		if lead.AgentID == id {
			delete(b.leads, leadID)
			// Bookings keep their row but lose the lead reference,
			// like the schema's ON DELETE SET NULL.
			for _, booking := range b.bookings {
				if booking.LeadID != nil && *booking.LeadID == leadID {
					booking.LeadID = nil
				}
			}
		}
	}
	kept := b.convs[:0]
	for _, conv := range b.convs {
		if conv.AgentID != id {
			kept = append(kept, conv)
		}
	}
	b.convs = kept
	b.mu.Unlock()

	b.Memories.DropAgent(ctx, id)
	return nil
}

func (b *InMemoryBackend) FindOrCreateLead(ctx context.Context, agentID uuid.UUID, phone string) (*Lead, error) {
	if phone == "" {
		return nil, validationErr("phone is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.agents[agentID]; !ok {
		return nil, ErrNotFound
	}
	for _, lead := range b.leads {
		if lead.AgentID == agentID && lead.Phone == phone {
			cp := *lead
			return &cp, nil
		}
	}
	lead := &Lead{
		ID:        uuid.New(),
		AgentID:   agentID,
		Phone:     phone,
		CreatedAt: time.Now(),
	}
	b.leads[lead.ID] = lead
	cp := *lead
	return &cp, nil
}

func (b *InMemoryBackend) GetConversations(ctx context.Context, agentID uuid.UUID, leadID *uuid.UUID, limit int) ([]Conversation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Conversation
	for i := len(b.convs) - 1; i >= 0 && len(out) < limit; i-- {
		conv := b.convs[i]
		if conv.AgentID != agentID {
			continue
		}
		if leadID != nil && (conv.LeadID == nil || *conv.LeadID != *leadID) {
			continue
		}
		out = append(out, *conv)
	}
	return out, nil
}

func (b *InMemoryBackend) SaveConversation(ctx context.Context, conv *Conversation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	cp := *conv
	b.convs = append(b.convs, &cp)
	return nil
}

func (b *InMemoryBackend) CreateHotel(ctx context.Context, hotel *Hotel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hotel.ID == uuid.Nil {
		hotel.ID = uuid.New()
	}
	if _, ok := b.hotels[hotel.ID]; ok {
		return ErrConflict
	}
	hotel.CreatedAt = time.Now()
	cp := *hotel
	b.hotels[hotel.ID] = &cp
	return nil
}

func (b *InMemoryBackend) CreateRoomType(ctx context.Context, rt *RoomType) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.hotels[rt.HotelID]; !ok {
		return ErrNotFound
	}
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	if _, ok := b.roomTypes[rt.ID]; ok {
		return ErrConflict
	}
	cp := *rt
	b.roomTypes[rt.ID] = &cp
	return nil
}

// countBlocked tallies live bookings of the room type overlapping the
// range. Callers hold b.mu.
func (b *InMemoryBackend) countBlocked(roomTypeID uuid.UUID, in, out time.Time) int {
	taken := 0
	for _, booking := range b.bookings {
		if booking.RoomTypeID == roomTypeID && bookingBlocks(booking, in, out) {
			taken++
		}
	}
	return taken
}

func (b *InMemoryBackend) GetAvailability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	hotel, ok := b.hotels[q.HotelID]
	if !ok {
		return nil, ErrNotFound
	}

	var rooms []RoomAvailability
	for _, rt := range b.roomTypes {
		if rt.HotelID != q.HotelID {
			continue
		}
		if q.RoomTypeID != nil && rt.ID != *q.RoomTypeID {
			continue
		}
		rooms = append(rooms, RoomAvailability{
			RoomTypeID:     rt.ID,
			Name:           rt.Name,
			Description:    rt.Description,
			MaxOccupancy:   rt.MaxOccupancy,
			BasePrice:      rt.BasePrice,
			TotalRooms:     rt.TotalRooms,
			AvailableRooms: rt.TotalRooms - b.countBlocked(rt.ID, q.CheckIn, q.CheckOut),
		})
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].BasePrice < rooms[j].BasePrice
	})
	return &Availability{
		HotelID:   hotel.ID,
		HotelName: hotel.Name,
		CheckIn:   q.CheckIn,
		CheckOut:  q.CheckOut,
		RoomTypes: rooms,
	}, nil
}

func (b *InMemoryBackend) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	hotel, ok := b.hotels[req.HotelID]
	if !ok {
		return nil, ErrNotFound
	}
	rt, ok := b.roomTypes[req.RoomTypeID]
	if !ok || rt.HotelID != req.HotelID {
		return nil, ErrNotFound
	}
	if req.GuestsCount > rt.MaxOccupancy {
		return nil, validationErr("guests_count %d exceeds max occupancy %d", req.GuestsCount, rt.MaxOccupancy)
	}
	if b.countBlocked(rt.ID, req.CheckIn, req.CheckOut) >= rt.TotalRooms {
		return nil, fmt.Errorf("%w: no rooms of type %s available for the requested dates", ErrConflict, rt.Name)
	}

	booking := &Booking{
		ID:              uuid.New(),
		HotelID:         req.HotelID,
		RoomTypeID:      req.RoomTypeID,
		LeadID:          req.LeadID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		GuestsCount:     req.GuestsCount,
		SpecialRequests: req.SpecialRequests,
		Status:          BookingConfirmed,
		CreatedAt:       time.Now(),
	}
	b.bookings[booking.ID] = booking

	cp := *booking
	cp.HotelName = hotel.Name
	cp.RoomTypeName = rt.Name
	return &cp, nil
}

func (b *InMemoryBackend) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	booking, ok := b.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	cp := *booking
	if hotel, ok := b.hotels[booking.HotelID]; ok {
		cp.HotelName = hotel.Name
	}
	if rt, ok := b.roomTypes[booking.RoomTypeID]; ok {
		cp.RoomTypeName = rt.Name
	}
	return &cp, nil
}

func (b *InMemoryBackend) CancelBooking(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	booking, ok := b.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	booking.Status = BookingCancelled
	return nil
}
