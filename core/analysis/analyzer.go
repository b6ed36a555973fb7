package analysis

import (
	"context"
	"fmt"
	"time"

	"Bt1Deck/core/audio"
	"Bt1Deck/model"
)

// Analyzer decodes a source and extracts naming features from it.
type Analyzer struct {
	decoder audio.Decoder
}

func NewAnalyzer(decoder audio.Decoder) *Analyzer {
	return &Analyzer{decoder: decoder}
}

// Extract decodes the start of src and computes its features from channel 0.
// Failures wrap audio.ErrDecodeFailed; the caller keeps the source name.
func (a *Analyzer) Extract(ctx context.Context, src model.MediaRef) (model.Features, error) {
	pcm, err := a.decoder.Decode(ctx, src, AnalysisSeconds*time.Second)
	if err != nil {
		return model.Features{}, err
	}
	if len(pcm.Channels) == 0 || pcm.SampleRate <= 0 {
		return model.Features{}, fmt.Errorf("%w: %s: empty decode result", audio.ErrDecodeFailed, src.Name())
	}
	return ExtractFeatures(pcm.Channels[0], pcm.SampleRate), nil
}

// Result is the outcome of an asynchronous extraction.
type Result struct {
	Features model.Features
	Err      error
}

// ExtractAsync runs Extract on its own goroutine and delivers exactly one Result.
func (a *Analyzer) ExtractAsync(ctx context.Context, src model.MediaRef) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		f, err := a.Extract(ctx, src)
		ch <- Result{Features: f, Err: err}
	}()
	return ch
}
