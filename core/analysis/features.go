package analysis

import (
	"math"

	"Bt1Deck/model"
)

const (
	// AnalysisSeconds caps how much of a track is analyzed.
	AnalysisSeconds = 10
	// SpectrumWindow is the DFT length used for the spectral centroid.
	SpectrumWindow = 2048
)

// ExtractFeatures computes energy, spectral centroid and the zero-crossing
// tempo proxy over the first AnalysisSeconds of a mono signal.
func ExtractFeatures(samples []float32, sampleRate int) model.Features {
	if sampleRate <= 0 || len(samples) == 0 {
		return model.Features{}
	}
	window := samples
	if limit := sampleRate * AnalysisSeconds; len(window) > limit {
		window = window[:limit]
	}

	return model.Features{
		Energy:   rms(window),
		Centroid: spectralCentroid(window, sampleRate),
		Tempo:    zeroCrossingTempo(window, sampleRate),
	}
}

func rms(x []float32) float64 {
	var sum float64
	for _, s := range x {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(x)))
}

// spectralCentroid runs a direct DFT over the first SpectrumWindow samples.
// Only the lower half of the bins is used; the upper half mirrors it.
func spectralCentroid(x []float32, sampleRate int) float64 {
	n := len(x)
	if n > SpectrumWindow {
		n = SpectrumWindow
	}
	mags := dftMagnitudes(x[:n])

	binHz := float64(sampleRate) / float64(n)
	var num, den float64
	for k, m := range mags {
		num += float64(k) * binHz * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// dftMagnitudes returns |X[k]| for k in [0, len(x)/2). O(n^2).
func dftMagnitudes(x []float32) []float64 {
	n := len(x)
	mags := make([]float64, n/2)
	for k := range mags {
		var re, im float64
		for i, s := range x {
			phi := 2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += float64(s) * math.Cos(phi)
			im -= float64(s) * math.Sin(phi)
		}
		mags[k] = math.Hypot(re, im)
	}
	return mags
}

// zeroCrossingTempo halves the zero-crossing rate per second. It is a rough
// proxy and says little about percussive or noisy material.
func zeroCrossingTempo(x []float32, sampleRate int) int {
	crossings := 0
	for i := 1; i < len(x); i++ {
		prev, cur := x[i-1], x[i]
		if (prev < 0 && cur >= 0) || (prev > 0 && cur <= 0) {
			crossings++
		}
	}
	seconds := float64(len(x)) / float64(sampleRate)
	return int(math.Round(float64(crossings) / seconds / 2))
}
