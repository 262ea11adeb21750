// Package tripflow - memory_inmem.go
// A mutex-guarded MemoryStore for tests and local development. It
// implements the same matching and ranking semantics as the Postgres
// store, just with in-process scoring.

package tripflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ MemoryStore = &InMemoryStore{}

type InMemoryStore struct {
	mu      sync.RWMutex
	byAgent map[uuid.UUID]map[string]*Memory
	nextSeq int64

	// now is swappable so tests can control expiry.
	now func() time.Time

	// agentExists gates writes, mirroring the foreign key on the Postgres
	// memories table. Nil means ungated, for standalone store use.
	agentExists func(agentID uuid.UUID) bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byAgent: make(map[uuid.UUID]map[string]*Memory),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Upsert(ctx context.Context, in MemoryUpsert) (*Memory, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Metadata == nil {
		in.Metadata = Metadata{}
	}
	// Checked before taking s.mu: the backend hook takes its own lock and
	// the backend's cascade path locks in the other order.
	if s.agentExists != nil && !s.agentExists(in.AgentID) {
		return nil, fmt.Errorf("%w: agent %s", ErrNotFound, in.AgentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	agent := s.byAgent[in.AgentID]
	if agent == nil {
		agent = make(map[string]*Memory)
		s.byAgent[in.AgentID] = agent
	}

	if existing, ok := agent[in.Key]; ok {
		existing.LeadID = in.LeadID
		existing.Value = in.Value
		existing.RelevanceScore = *in.RelevanceScore
		existing.Metadata = in.Metadata.Clone()
		existing.ExpiresAt = in.ExpiresAt
		existing.UpdatedAt = now
		cp := *existing
		cp.Metadata = existing.Metadata.Clone()
		return &cp, nil
	}

	s.nextSeq++
	mem := &Memory{
		ID:             uuid.New(),
		AgentID:        in.AgentID,
		LeadID:         in.LeadID,
		Key:            in.Key,
		Value:          in.Value,
		RelevanceScore: *in.RelevanceScore,
		Metadata:       in.Metadata.Clone(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Seq:            s.nextSeq,
	}
	agent[in.Key] = mem
	cp := *mem
	cp.Metadata = mem.Metadata.Clone()
	return &cp, nil
}

func (s *InMemoryStore) Search(ctx context.Context, q MemorySearch) ([]Memory, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		mem  Memory
		rank float64
	}
	var hits []scored
	for _, mem := range s.byAgent[q.AgentID] {
		if mem.RelevanceScore < *q.MinRelevance {
			continue
		}
		rank, ok := textScore(mem.Key, mem.Value, q.Query)
		if !ok {
			continue
		}
		hits = append(hits, scored{mem: *mem, rank: rank})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		if a.mem.RelevanceScore != b.mem.RelevanceScore {
			return a.mem.RelevanceScore > b.mem.RelevanceScore
		}
		if !a.mem.CreatedAt.Equal(b.mem.CreatedAt) {
			return a.mem.CreatedAt.After(b.mem.CreatedAt)
		}
		return a.mem.Seq < b.mem.Seq
	})

	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	results := make([]Memory, len(hits))
	for i, h := range hits {
		results[i] = h.mem
		results[i].Metadata = h.mem.Metadata.Clone()
	}
	return results, nil
}

func (s *InMemoryStore) DeleteMemory(ctx context.Context, agentID uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent := s.byAgent[agentID]
	if _, ok := agent[key]; !ok {
		return ErrNotFound
	}
	delete(agent, key)
	return nil
}

func (s *InMemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var purged int64
	for _, agent := range s.byAgent {
		for key, mem := range agent {
			if mem.ExpiresAt != nil && mem.ExpiresAt.Before(now) {
				delete(agent, key)
				purged++
			}
		}
	}
	return purged, nil
}

// DropAgent removes every memory owned by the agent, mirroring the
// ON DELETE CASCADE the Postgres schema enforces.
func (s *InMemoryStore) DropAgent(ctx context.Context, agentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAgent, agentID)
}
