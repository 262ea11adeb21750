package tripflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	_ Storage     = &PostgresStorage{}
	_ MemoryStore = &PostgresStorage{}
)

// PostgresStorage implements Storage and MemoryStore on a Postgres
// database. Uniqueness of (agent_id, key), cascading deletes and the
// full-text ranking all live in the database itself.
type PostgresStorage struct {
	db *gorm.DB
}

// NewPostgresStorage connects to the database at the given URI.
func NewPostgresStorage(postgresURI string) (*PostgresStorage, error) {
	db, err := gorm.Open(postgres.Open(postgresURI), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

// InitDB creates the schema if it doesn't exist.
func (s *PostgresStorage) InitDB(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS unaccent`,

		`CREATE TABLE IF NOT EXISTS agents (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			welcome_message TEXT NOT NULL DEFAULT '',
			personality TEXT NOT NULL DEFAULT '',
			use_emojis BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS leads (
			id UUID PRIMARY KEY,
			agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			phone TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(agent_id, phone)
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			lead_id UUID REFERENCES leads(id) ON DELETE SET NULL,
			user_message TEXT,
			assistant_message TEXT,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS memories (
			id UUID PRIMARY KEY,
			agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			lead_id UUID REFERENCES leads(id) ON DELETE SET NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			relevance_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ,
			seq BIGSERIAL,
			UNIQUE(agent_id, key)
		)`,

		`CREATE TABLE IF NOT EXISTS hotels (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS room_types (
			id UUID PRIMARY KEY,
			hotel_id UUID NOT NULL REFERENCES hotels(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			max_occupancy INT NOT NULL DEFAULT 2,
			base_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_rooms INT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY,
			hotel_id UUID NOT NULL REFERENCES hotels(id) ON DELETE CASCADE,
			room_type_id UUID NOT NULL REFERENCES room_types(id) ON DELETE CASCADE,
			lead_id UUID REFERENCES leads(id) ON DELETE SET NULL,
			check_in DATE NOT NULL,
			check_out DATE NOT NULL,
			guests_count INT NOT NULL,
			special_requests TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'confirmed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at) WHERE expires_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_memories_fts ON memories USING GIN (to_tsvector('english', key || ' ' || value))`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_agent_lead ON conversations(agent_id, lead_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_room_dates ON bookings(room_type_id, check_in, check_out)`,
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mapPGError translates driver errors into the package taxonomy. Anything
// unrecognized (connectivity, timeouts) propagates as-is so callers can
// apply their own retry policy.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		case "23505": // unique_violation that the upsert clause didn't absorb
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// Upsert writes the memory in a single conflict-resolving statement.
// updated_at is set by the statement itself so no caller can forget it;
// created_at survives overwrites.
func (s *PostgresStorage) Upsert(ctx context.Context, in MemoryUpsert) (*Memory, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Metadata == nil {
		in.Metadata = Metadata{}
	}

	const query = `
	INSERT INTO memories (id, agent_id, lead_id, key, value, relevance_score, metadata, created_at, updated_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?::jsonb, NOW(), NOW(), ?)
	ON CONFLICT (agent_id, key) DO UPDATE SET
		lead_id = EXCLUDED.lead_id,
		value = EXCLUDED.value,
		relevance_score = EXCLUDED.relevance_score,
		metadata = EXCLUDED.metadata,
		expires_at = EXCLUDED.expires_at,
		updated_at = NOW()
	RETURNING id, agent_id, lead_id, key, value, relevance_score, metadata, created_at, updated_at, expires_at, seq`

	metaJSON, err := in.Metadata.Value()
	if err != nil {
		return nil, err
	}

	var mem Memory
	tx := s.db.WithContext(ctx).Raw(query,
		uuid.New(), in.AgentID, in.LeadID, in.Key, in.Value,
		*in.RelevanceScore, metaJSON, in.ExpiresAt,
	).Scan(&mem)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to upsert memory: %w", mapPGError(tx.Error))
	}
	return &mem, nil
}

// Search runs the ranked retrieval as one query: full-text matches rank by
// ts_rank, substring-only matches fall to the bottom tier with rank 0,
// then relevance score, recency and insertion order break ties.
func (s *PostgresStorage) Search(ctx context.Context, q MemorySearch) ([]Memory, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Query) == "" {
		return nil, nil
	}

	const query = `
	SELECT id, agent_id, lead_id, key, value, relevance_score, metadata, created_at, updated_at, expires_at, seq
	FROM memories
	WHERE agent_id = ?
	  AND relevance_score >= ?
	  AND (
		to_tsvector('english', key || ' ' || value) @@ plainto_tsquery('english', ?)
		OR unaccent(key) ILIKE unaccent(?)
		OR unaccent(value) ILIKE unaccent(?)
	  )
	ORDER BY
		ts_rank(to_tsvector('english', key || ' ' || value), plainto_tsquery('english', ?)) DESC,
		relevance_score DESC,
		created_at DESC,
		seq ASC
	LIMIT ?`

	pattern := "%" + escapeLike(q.Query) + "%"
	var results []Memory
	tx := s.db.WithContext(ctx).Raw(query,
		q.AgentID, *q.MinRelevance, q.Query, pattern, pattern, q.Query, q.Limit,
	).Scan(&results)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to search memories: %w", mapPGError(tx.Error))
	}
	return results, nil
}

// escapeLike makes the query text safe for use inside an ILIKE pattern.
// Without it a query like "50%" would match every row.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

func (s *PostgresStorage) DeleteMemory(ctx context.Context, agentID uuid.UUID, key string) error {
	tx := s.db.WithContext(ctx).Exec(`DELETE FROM memories WHERE agent_id = ? AND key = ?`, agentID, key)
	if tx.Error != nil {
		return fmt.Errorf("failed to delete memory: %w", mapPGError(tx.Error))
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired deletes every memory whose expiry is strictly in the past.
// Running it again immediately deletes nothing.
func (s *PostgresStorage) PurgeExpired(ctx context.Context) (int64, error) {
	tx := s.db.WithContext(ctx).Exec(`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at < NOW()`)
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to purge expired memories: %w", mapPGError(tx.Error))
	}
	return tx.RowsAffected, nil
}

func (s *PostgresStorage) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(agent).Error; err != nil {
		return fmt.Errorf("failed to create agent: %w", mapPGError(err))
	}
	return nil
}

func (s *PostgresStorage) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	var agent Agent
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", mapPGError(err))
	}
	return &agent, nil
}

func (s *PostgresStorage) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", mapPGError(err))
	}
	return agents, nil
}

func (s *PostgresStorage) UpdateAgent(ctx context.Context, agent *Agent) error {
	tx := s.db.WithContext(ctx).Model(&Agent{}).Where("id = ?", agent.ID).Updates(map[string]any{
		"name":            agent.Name,
		"system_prompt":   agent.SystemPrompt,
		"welcome_message": agent.WelcomeMessage,
		"personality":     agent.Personality,
		"use_emojis":      agent.UseEmojis,
		"updated_at":      gorm.Expr("NOW()"),
	})
	if tx.Error != nil {
		return fmt.Errorf("failed to update agent: %w", mapPGError(tx.Error))
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes the agent; leads, conversations and memories go with
// it via the schema's ON DELETE CASCADE.
func (s *PostgresStorage) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	tx := s.db.WithContext(ctx).Exec(`DELETE FROM agents WHERE id = ?`, id)
	if tx.Error != nil {
		return fmt.Errorf("failed to delete agent: %w", mapPGError(tx.Error))
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) FindOrCreateLead(ctx context.Context, agentID uuid.UUID, phone string) (*Lead, error) {
	const query = `
	INSERT INTO leads (id, agent_id, phone, created_at)
	VALUES (?, ?, ?, NOW())
	ON CONFLICT (agent_id, phone) DO UPDATE SET phone = EXCLUDED.phone
	RETURNING id, agent_id, phone, name, created_at`

	var lead Lead
	tx := s.db.WithContext(ctx).Raw(query, uuid.New(), agentID, phone).Scan(&lead)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to resolve lead: %w", mapPGError(tx.Error))
	}
	return &lead, nil
}

func (s *PostgresStorage) GetConversations(ctx context.Context, agentID uuid.UUID, leadID *uuid.UUID, limit int) ([]Conversation, error) {
	q := s.db.WithContext(ctx).Where("agent_id = ?", agentID)
	if leadID != nil {
		q = q.Where("lead_id = ?", *leadID)
	}
	var convs []Conversation
	if err := q.Order("created_at DESC").Limit(limit).Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", mapPGError(err))
	}
	return convs, nil
}

func (s *PostgresStorage) SaveConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to save conversation: %w", mapPGError(err))
	}
	return nil
}

func (s *PostgresStorage) CreateHotel(ctx context.Context, hotel *Hotel) error {
	if hotel.ID == uuid.Nil {
		hotel.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(hotel).Error; err != nil {
		return fmt.Errorf("failed to create hotel: %w", mapPGError(err))
	}
	return nil
}

func (s *PostgresStorage) CreateRoomType(ctx context.Context, rt *RoomType) error {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(rt).Error; err != nil {
		return fmt.Errorf("failed to create room type: %w", mapPGError(err))
	}
	return nil
}

// GetAvailability subtracts overlapping live bookings from each room
// type's total. Check-out is exclusive, so back-to-back stays share no
// night.
func (s *PostgresStorage) GetAvailability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var hotel Hotel
	if err := s.db.WithContext(ctx).First(&hotel, "id = ?", q.HotelID).Error; err != nil {
		return nil, fmt.Errorf("failed to get hotel: %w", mapPGError(err))
	}

	query := `
	SELECT rt.id AS room_type_id, rt.name, rt.description, rt.max_occupancy, rt.base_price, rt.total_rooms,
		rt.total_rooms - (
			SELECT COUNT(*) FROM bookings b
			WHERE b.room_type_id = rt.id
			  AND b.status <> 'cancelled'
			  AND b.check_in < ? AND b.check_out > ?
		) AS available_rooms
	FROM room_types rt
	WHERE rt.hotel_id = ?`
	args := []any{q.CheckOut, q.CheckIn, q.HotelID}
	if q.RoomTypeID != nil {
		query += ` AND rt.id = ?`
		args = append(args, *q.RoomTypeID)
	}
	query += ` ORDER BY rt.base_price ASC`

	var rooms []RoomAvailability
	tx := s.db.WithContext(ctx).Raw(query, args...).Scan(&rooms)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to query availability: %w", mapPGError(tx.Error))
	}
	return &Availability{
		HotelID:   hotel.ID,
		HotelName: hotel.Name,
		CheckIn:   q.CheckIn,
		CheckOut:  q.CheckOut,
		RoomTypes: rooms,
	}, nil
}

// CreateBooking checks capacity and inserts inside one transaction. The
// room type row is locked so two concurrent requests cannot both take
// the last room.
func (s *PostgresStorage) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt RoomType
		if err := tx.Raw(
			`SELECT * FROM room_types WHERE id = ? AND hotel_id = ? FOR UPDATE`,
			req.RoomTypeID, req.HotelID,
		).Scan(&rt).Error; err != nil {
			return mapPGError(err)
		}
		if rt.ID == uuid.Nil {
			return fmt.Errorf("%w: room type %s", ErrNotFound, req.RoomTypeID)
		}
		if req.GuestsCount > rt.MaxOccupancy {
			return validationErr("guests_count %d exceeds max occupancy %d", req.GuestsCount, rt.MaxOccupancy)
		}

		var taken int64
		if err := tx.Raw(
			`SELECT COUNT(*) FROM bookings
			 WHERE room_type_id = ? AND status <> 'cancelled'
			   AND check_in < ? AND check_out > ?`,
			req.RoomTypeID, req.CheckOut, req.CheckIn,
		).Scan(&taken).Error; err != nil {
			return mapPGError(err)
		}
		if taken >= int64(rt.TotalRooms) {
			return fmt.Errorf("%w: no rooms of type %s available for the requested dates", ErrConflict, rt.Name)
		}

		if err := tx.Exec(
			`INSERT INTO bookings (id, hotel_id, room_type_id, lead_id, check_in, check_out, guests_count, special_requests, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())`,
			id, req.HotelID, req.RoomTypeID, req.LeadID,
			req.CheckIn, req.CheckOut, req.GuestsCount, req.SpecialRequests, BookingConfirmed,
		).Error; err != nil {
			return mapPGError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	return s.GetBooking(ctx, id)
}

func (s *PostgresStorage) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	const query = `
	SELECT b.id, b.hotel_id, b.room_type_id, b.lead_id, b.check_in, b.check_out,
		b.guests_count, b.special_requests, b.status, b.created_at,
		h.name AS hotel_name, rt.name AS room_type_name
	FROM bookings b
	JOIN hotels h ON h.id = b.hotel_id
	JOIN room_types rt ON rt.id = b.room_type_id
	WHERE b.id = ?`

	var booking Booking
	tx := s.db.WithContext(ctx).Raw(query, id).Scan(&booking)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to get booking: %w", mapPGError(tx.Error))
	}
	if tx.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return &booking, nil
}

// CancelBooking marks the booking cancelled, freeing its room for the
// whole range. Cancelling twice is a no-op.
func (s *PostgresStorage) CancelBooking(ctx context.Context, id uuid.UUID) error {
	tx := s.db.WithContext(ctx).Exec(`UPDATE bookings SET status = 'cancelled' WHERE id = ?`, id)
	if tx.Error != nil {
		return fmt.Errorf("failed to cancel booking: %w", mapPGError(tx.Error))
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return nil
}
