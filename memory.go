// Package tripflow - memory.go
// The conversational memory store: facts an agent remembers about its
// leads, upserted by (agent, key) and retrieved by ranked free-text search.

package tripflow

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata is the open JSON object attached to a memory. It round-trips
// through a JSONB column.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// Clone copies the metadata tree so callers and the store never share
// mutable state. JSON values only hold maps, slices and scalars.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	cp := make(Metadata, len(m))
	for k, v := range m {
		cp[k] = cloneJSONValue(v)
	}
	return cp
}

func cloneJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = cloneJSONValue(e)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneJSONValue(e)
		}
		return cp
	default:
		return t
	}
}

// Memory is one stored fact. (AgentID, Key) is unique among live records;
// writes to an existing pair overwrite value, relevance, metadata and
// expiry while preserving CreatedAt.
type Memory struct {
	ID             uuid.UUID  `gorm:"column:id;primaryKey" json:"id"`
	AgentID        uuid.UUID  `gorm:"column:agent_id" json:"agent_id"`
	LeadID         *uuid.UUID `gorm:"column:lead_id" json:"lead_id,omitempty"`
	Key            string     `gorm:"column:key" json:"key"`
	Value          string     `gorm:"column:value" json:"value"`
	RelevanceScore float64    `gorm:"column:relevance_score" json:"relevance_score"`
	Metadata       Metadata   `gorm:"column:metadata" json:"metadata"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
	ExpiresAt      *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`

	// Seq is the insertion order, the last-resort ranking tiebreaker.
	Seq int64 `gorm:"column:seq" json:"-"`
}

func (Memory) TableName() string {
	return "memories"
}

// MemoryUpsert is the write request for a memory. A nil RelevanceScore
// means "use the default"; an explicit 0 is stored as 0.
type MemoryUpsert struct {
	AgentID        uuid.UUID
	LeadID         *uuid.UUID
	Key            string
	Value          string
	RelevanceScore *float64
	Metadata       Metadata
	ExpiresAt      *time.Time
}

// Validate rejects writes the store must not attempt and fills the
// relevance default so no record is written with an accidental zero.
func (u *MemoryUpsert) Validate() error {
	if u.AgentID == uuid.Nil {
		return validationErr("agent_id is required")
	}
	if u.Key == "" {
		return validationErr("key is required")
	}
	if u.RelevanceScore == nil {
		score := DefaultRelevanceScore
		u.RelevanceScore = &score
	}
	return nil
}

const (
	DefaultSearchLimit    = 5
	DefaultMinRelevance   = 0.5
	DefaultRelevanceScore = 1.0
)

// Float returns a pointer to v, for the optional score fields on the
// request types.
func Float(v float64) *float64 {
	return &v
}

// MemorySearch is a ranked retrieval request. Zero-value Limit and
// MinRelevance are filled with the defaults by Normalize.
type MemorySearch struct {
	AgentID      uuid.UUID
	Query        string
	MinRelevance *float64
	Limit        int
}

func (q *MemorySearch) Normalize() error {
	if q.AgentID == uuid.Nil {
		return validationErr("agent_id is required")
	}
	if q.Limit == 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit < 1 {
		return validationErr("limit must be >= 1, got %d", q.Limit)
	}
	if q.MinRelevance == nil {
		min := DefaultMinRelevance
		q.MinRelevance = &min
	}
	return nil
}

// MemoryStore is the contract both the Postgres and the in-memory
// implementations satisfy.
//
// Upsert is a single atomic conflict-resolving write: an existing
// (agent, key) pair is overwritten, UpdatedAt is refreshed inside the same
// write, CreatedAt is preserved. Search never errors on "no matches" and
// PurgeExpired never errors on "nothing to purge".
type MemoryStore interface {
	Upsert(ctx context.Context, in MemoryUpsert) (*Memory, error)
	Search(ctx context.Context, q MemorySearch) ([]Memory, error)
	DeleteMemory(ctx context.Context, agentID uuid.UUID, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
}
