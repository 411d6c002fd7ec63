package main

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"recordshop/internal/domain/records"
)

var (
	seedArtists = []string{
		"Radiohead", "Miles Davis", "Kendrick Lamar", "Glenn Gould", "Daft Punk",
		"Pixies", "Bon Iver", "Nina Simone", "Wu-Tang Clan", "Kate Bush",
		"Talking Heads", "John Coltrane", "Arcade Fire", "Bjork", "Portishead",
	}
	seedAdjectives = []string{
		"Blue", "Electric", "Silent", "Golden", "Broken", "Midnight", "Paper", "Velvet",
	}
	seedNouns = []string{
		"Horizon", "Garden", "Machine", "Rivers", "Echoes", "Cities", "Signals", "Tides",
	}
	seedTracks = []string{
		"Intro", "Interlude", "Reprise", "Outro", "Side A", "Side B",
	}
)

// generateCatalog builds n distinct records from seed. Records with a
// colliding (artist, album, format) key are dropped, so fewer than n may be
// returned for large n.
func generateCatalog(n int, seed int64) []*records.Record {
	rng := rand.New(rand.NewSource(seed))
	formats := records.Formats()
	categories := records.Categories()

	seen := make(map[records.Key]bool, n)
	out := make([]*records.Record, 0, n)

	for i := 0; i < n; i++ {
		artist := seedArtists[rng.Intn(len(seedArtists))]
		album := seedAdjectives[rng.Intn(len(seedAdjectives))] + " " + seedNouns[rng.Intn(len(seedNouns))]
		r := records.NewRecord(artist, album, formats[rng.Intn(len(formats))], categories[rng.Intn(len(categories))])
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true

		r.Price = decimal.New(int64(500+rng.Intn(4500)), -2)
		r.Qty = int64(rng.Intn(50))
		tracks := 1 + rng.Intn(len(seedTracks))
		r.TrackList = append([]string(nil), seedTracks[:tracks]...)
		out = append(out, r)
	}
	return out
}
