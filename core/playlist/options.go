package playlist

import (
	"math/rand"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"Bt1Deck/core/cover"
)

// Option configures a Store.
type Option func(*Store)

// WithArtworkReader sets the embedded artwork reader. Nil disables artwork.
func WithArtworkReader(r cover.ArtworkReader) Option {
	return func(s *Store) { s.artwork = r }
}

// WithCoverGenerator sets the placeholder cover generator.
func WithCoverGenerator(g *cover.Generator) Option {
	return func(s *Store) {
		if g != nil {
			s.covers = g
		}
	}
}

// WithRand sets the random source used by shuffle.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) {
		if r != nil {
			s.rand = r
		}
	}
}

// WithSeed seeds the shuffle source; zero keeps the time-based default.
func WithSeed(seed int64) Option {
	return func(s *Store) {
		if seed != 0 {
			s.rand = rand.New(rand.NewSource(seed))
		}
	}
}

// WithCollator sets the locale used by name sorting. Comparison is case-insensitive.
func WithCollator(locale string) Option {
	return func(s *Store) { s.collator = newCollator(locale) }
}

// WithRemapOnSort keeps the current track selected across a sort instead of
// keeping its raw position.
func WithRemapOnSort(remap bool) Option {
	return func(s *Store) { s.remapOnSort = remap }
}

func newCollator(locale string) *collate.Collator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return collate.New(tag, collate.IgnoreCase)
}

func defaultRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
