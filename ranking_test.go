package tripflow

import "testing"

func TestTextScore(t *testing.T) {
	t.Run("TokenOverlapScoresHigherThanSubstring", func(t *testing.T) {
		tokenRank, ok := textScore("favorite_destination", "Loves the beaches in Bali", "bali beaches")
		if !ok {
			t.Fatalf("Expected a token match")
		}
		substrRank, ok := textScore("note", "xbalix", "bali")
		if !ok {
			t.Fatalf("Expected a substring match")
		}
		if tokenRank <= substrRank {
			t.Fatalf("Expected token overlap (%f) to outrank bare substring (%f)", tokenRank, substrRank)
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		upper, ok := textScore("key", "BALI BEACHES", "bali")
		if !ok {
			t.Fatalf("Expected uppercase text to match lowercase query")
		}
		lower, ok := textScore("key", "bali beaches", "BALI")
		if !ok {
			t.Fatalf("Expected lowercase text to match uppercase query")
		}
		if upper != lower {
			t.Fatalf("Expected identical ranks regardless of case, got %f vs %f", upper, lower)
		}
	})

	t.Run("DiacriticsFolded", func(t *testing.T) {
		if _, ok := textScore("city", "Dreams of visiting São Paulo", "sao paulo"); !ok {
			t.Fatalf("Expected accented text to match unaccented query")
		}
		if _, ok := textScore("city", "Dreams of visiting Sao Paulo", "são paulo"); !ok {
			t.Fatalf("Expected unaccented text to match accented query")
		}
	})

	t.Run("LightStemming", func(t *testing.T) {
		if _, ok := textScore("wishlist", "dream destinations for 2026", "destination"); !ok {
			t.Fatalf("Expected plural to match singular")
		}
		if _, ok := textScore("wishlist", "a dream destination", "destinations"); !ok {
			t.Fatalf("Expected singular to match plural")
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		if rank, ok := textScore("budget", "2000 USD per trip", "snowboarding"); ok {
			t.Fatalf("Expected no match, got rank %f", rank)
		}
	})

	t.Run("KeyAloneCanMatch", func(t *testing.T) {
		if _, ok := textScore("favorite_destination", "Kyoto", "destination"); !ok {
			t.Fatalf("Expected the key text to participate in matching")
		}
	})
}

func TestFoldText(t *testing.T) {
	cases := map[string]string{
		"São Paulo":  "sao paulo",
		"Ñandú":      "nandu",
		"CRÈME":      "creme",
		"plain text": "plain text",
	}
	for in, want := range cases {
		if got := foldText(in); got != want {
			t.Fatalf("foldText(%q) = %q, want %q", in, got, want)
		}
	}
}
