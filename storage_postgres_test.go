package tripflow

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// These tests need a reachable Postgres with the unaccent extension
// available. Set POSTGRES_URI to run them.
func newPostgresForTest(t *testing.T) *PostgresStorage {
	t.Helper()
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		t.Skip("POSTGRES_URI not set, skipping Postgres tests")
	}
	storage, err := NewPostgresStorage(uri)
	if err != nil {
		t.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := storage.InitDB(context.Background()); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	return storage
}

func TestPostgresMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newPostgresForTest(t)

	agent := &Agent{Name: "pg-test", SystemPrompt: "travel agent"}
	if err := storage.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	defer storage.DeleteAgent(ctx, agent.ID)

	t.Run("UpsertOverwrites", func(t *testing.T) {
		first, err := storage.Upsert(ctx, MemoryUpsert{
			AgentID:        agent.ID,
			Key:            "favorite_destination",
			Value:          "Bali",
			RelevanceScore: Float(0.9),
		})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		second, err := storage.Upsert(ctx, MemoryUpsert{
			AgentID:        agent.ID,
			Key:            "favorite_destination",
			Value:          "Kyoto",
			RelevanceScore: Float(0.8),
		})
		if err != nil {
			t.Fatalf("Failed to upsert again: %v", err)
		}
		if second.ID != first.ID || second.Value != "Kyoto" {
			t.Fatalf("Expected the same record overwritten, got %+v", second)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Fatalf("Expected created_at preserved across upserts")
		}
	})

	t.Run("SearchMatchesAndScopes", func(t *testing.T) {
		if _, err := storage.Upsert(ctx, MemoryUpsert{
			AgentID: agent.ID, Key: "budget", Value: "2000 USD per trip", RelevanceScore: Float(0.7),
		}); err != nil {
			t.Fatalf("Failed to seed: %v", err)
		}

		results, err := storage.Search(ctx, MemorySearch{AgentID: agent.ID, Query: "Kyoto"})
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(results) != 1 || results[0].Key != "favorite_destination" {
			t.Fatalf("Unexpected results %+v", results)
		}
	})

	t.Run("EmptyQueryMatchesNothing", func(t *testing.T) {
		for _, query := range []string{"", "   "} {
			results, err := storage.Search(ctx, MemorySearch{AgentID: agent.ID, Query: query})
			if err != nil {
				t.Fatalf("Failed to search with query %q: %v", query, err)
			}
			if len(results) != 0 {
				t.Fatalf("Expected empty query %q to match nothing, got %d results", query, len(results))
			}
		}
	})

	t.Run("WildcardCharactersAreLiteral", func(t *testing.T) {
		floor := 0.0
		for _, query := range []string{"%", "%a%", "50%"} {
			results, err := storage.Search(ctx, MemorySearch{
				AgentID: agent.ID, Query: query, MinRelevance: &floor,
			})
			if err != nil {
				t.Fatalf("Failed to search with query %q: %v", query, err)
			}
			if len(results) != 0 {
				t.Fatalf("Expected %q to match no stored text, got %d results", query, len(results))
			}
		}
	})

	t.Run("OmittedScoreDefaultsToOne", func(t *testing.T) {
		mem, err := storage.Upsert(ctx, MemoryUpsert{
			AgentID: agent.ID, Key: "loyalty_tier", Value: "Gold member",
		})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if mem.RelevanceScore != DefaultRelevanceScore {
			t.Fatalf("Expected default relevance %v, got %v", DefaultRelevanceScore, mem.RelevanceScore)
		}
	})

	t.Run("UpsertRejectsUnknownAgent", func(t *testing.T) {
		ghost := &Agent{Name: "ghost", SystemPrompt: "x"}
		if err := storage.CreateAgent(ctx, ghost); err != nil {
			t.Fatalf("Failed to create agent: %v", err)
		}
		if err := storage.DeleteAgent(ctx, ghost.ID); err != nil {
			t.Fatalf("Failed to delete agent: %v", err)
		}
		_, err := storage.Upsert(ctx, MemoryUpsert{
			AgentID: ghost.ID, Key: "k", Value: "v", RelevanceScore: Float(1),
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected not found for missing agent, got %v", err)
		}
	})

	t.Run("PurgeExpired", func(t *testing.T) {
		expired := time.Now().Add(-time.Hour)
		if _, err := storage.Upsert(ctx, MemoryUpsert{
			AgentID: agent.ID, Key: "stale", Value: "old", RelevanceScore: Float(1), ExpiresAt: &expired,
		}); err != nil {
			t.Fatalf("Failed to seed expired memory: %v", err)
		}

		purged, err := storage.PurgeExpired(ctx)
		if err != nil {
			t.Fatalf("Failed to purge: %v", err)
		}
		if purged < 1 {
			t.Fatalf("Expected at least one purged record, got %d", purged)
		}

		again, err := storage.PurgeExpired(ctx)
		if err != nil {
			t.Fatalf("Failed to purge again: %v", err)
		}
		if again != 0 {
			t.Fatalf("Expected idempotent sweep, got %d", again)
		}
	})

	t.Run("DeleteMemory", func(t *testing.T) {
		if err := storage.DeleteMemory(ctx, agent.ID, "budget"); err != nil {
			t.Fatalf("Failed to delete memory: %v", err)
		}
		if err := storage.DeleteMemory(ctx, agent.ID, "budget"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected not found on second delete, got %v", err)
		}
	})
}

func TestPostgresBookings(t *testing.T) {
	ctx := context.Background()
	storage := newPostgresForTest(t)

	hotel := &Hotel{Name: "pg-booking-test"}
	if err := storage.CreateHotel(ctx, hotel); err != nil {
		t.Fatalf("Failed to create hotel: %v", err)
	}
	rt := &RoomType{
		HotelID: hotel.ID, Name: "Doble", MaxOccupancy: 2, BasePrice: 100, TotalRooms: 1,
	}
	if err := storage.CreateRoomType(ctx, rt); err != nil {
		t.Fatalf("Failed to create room type: %v", err)
	}

	checkIn := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	booking, err := storage.CreateBooking(ctx, BookingRequest{
		HotelID: hotel.ID, RoomTypeID: rt.ID,
		CheckIn: checkIn, CheckOut: checkOut, GuestsCount: 2,
	})
	if err != nil {
		t.Fatalf("Failed to create booking: %v", err)
	}
	if booking.Status != BookingConfirmed || booking.HotelName != hotel.Name {
		t.Fatalf("Unexpected booking %+v", booking)
	}

	avail, err := storage.GetAvailability(ctx, AvailabilityQuery{
		HotelID: hotel.ID, CheckIn: checkIn, CheckOut: checkOut,
	})
	if err != nil {
		t.Fatalf("Failed to query availability: %v", err)
	}
	if len(avail.RoomTypes) != 1 || avail.RoomTypes[0].AvailableRooms != 0 {
		t.Fatalf("Expected the only room to be taken, got %+v", avail.RoomTypes)
	}

	if _, err := storage.CreateBooking(ctx, BookingRequest{
		HotelID: hotel.ID, RoomTypeID: rt.ID,
		CheckIn: checkIn, CheckOut: checkOut, GuestsCount: 1,
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected conflict when fully booked, got %v", err)
	}

	if err := storage.CancelBooking(ctx, booking.ID); err != nil {
		t.Fatalf("Failed to cancel booking: %v", err)
	}
	got, err := storage.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("Failed to get booking: %v", err)
	}
	if got.Status != BookingCancelled {
		t.Fatalf("Expected cancelled status, got %q", got.Status)
	}
}

func TestPostgresAgentCascade(t *testing.T) {
	ctx := context.Background()
	storage := newPostgresForTest(t)

	agent := &Agent{Name: "cascade-test", SystemPrompt: "travel agent"}
	if err := storage.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}

	lead, err := storage.FindOrCreateLead(ctx, agent.ID, "34600111222")
	if err != nil {
		t.Fatalf("Failed to create lead: %v", err)
	}
	again, err := storage.FindOrCreateLead(ctx, agent.ID, "34600111222")
	if err != nil {
		t.Fatalf("Failed to find lead: %v", err)
	}
	if again.ID != lead.ID {
		t.Fatalf("Expected the same lead on repeat lookup")
	}

	if _, err := storage.Upsert(ctx, MemoryUpsert{
		AgentID: agent.ID, LeadID: &lead.ID, Key: "k", Value: "v", RelevanceScore: Float(1),
	}); err != nil {
		t.Fatalf("Failed to upsert memory: %v", err)
	}

	if err := storage.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("Failed to delete agent: %v", err)
	}

	results, err := storage.Search(ctx, MemorySearch{AgentID: agent.ID, Query: "v"})
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Expected memories to cascade on agent delete, got %+v", results)
	}

	if _, err := storage.GetAgent(ctx, agent.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected agent to be gone, got %v", err)
	}
}
