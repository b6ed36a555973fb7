package analysis

import (
	"fmt"
	"strings"

	"Bt1Deck/core/utils"
	"Bt1Deck/model"
)

const (
	energyThreshold   = 0.08
	brightThreshold   = 2000.0 // Hz
	fastThreshold     = 120
	midTempoThreshold = 80
)

// nouns is indexed by the source name hash, so its order is part of the output.
var nouns = []string{
	"journey", "night", "dream", "rhythm", "waves",
	"corner", "window", "memories", "city", "point",
}

// Descriptors returns the energy, brightness and tempo words for f.
func Descriptors(f model.Features) []string {
	words := make([]string, 0, 3)
	if f.Energy > energyThreshold {
		words = append(words, "energetic")
	} else {
		words = append(words, "soft")
	}
	if f.Centroid > brightThreshold {
		words = append(words, "bright")
	} else {
		words = append(words, "deep")
	}
	switch {
	case f.Tempo > fastThreshold:
		words = append(words, "fast")
	case f.Tempo > midTempoThreshold:
		words = append(words, "mid-tempo")
	default:
		words = append(words, "slow")
	}
	return words
}

// Noun picks the vocabulary word for a source name.
func Noun(sourceName string) string {
	return nouns[utils.HashIndex(sourceName, len(nouns))]
}

// NameFromFeatures builds a label such as "energetic-bright-fast night (140bpm)".
// A zero tempo renders as "--bpm".
func NameFromFeatures(sourceName string, f model.Features) string {
	tempo := "--"
	if f.Tempo != 0 {
		tempo = fmt.Sprint(f.Tempo)
	}
	return fmt.Sprintf("%s %s (%sbpm)", strings.Join(Descriptors(f), "-"), Noun(sourceName), tempo)
}
