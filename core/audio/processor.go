package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Bt1Deck/model"
)

var (
	// ErrDecodeFailed wraps every probe or PCM decode failure.
	ErrDecodeFailed = errors.New("audio decode failed")
	// ErrUnsupportedFormat is returned by decoders that do not handle a source.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// PCM is decoded audio as per-channel float samples in [-1, 1].
type PCM struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of samples per channel.
func (p *PCM) Frames() int {
	if p == nil || len(p.Channels) == 0 {
		return 0
	}
	return len(p.Channels[0])
}

// Duration of the decoded audio.
func (p *PCM) Duration() time.Duration {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Prober reports a source's duration.
type Prober interface {
	Probe(ctx context.Context, src model.MediaRef) (time.Duration, error)
}

// Decoder probes and decodes audio sources.
type Decoder interface {
	Prober
	// Decode returns PCM for the source. A positive limit stops decoding after
	// that much audio; zero decodes everything.
	Decode(ctx context.Context, src model.MediaRef, limit time.Duration) (*PCM, error)
}

// ChainDecoder tries each decoder in turn; the first success wins.
type ChainDecoder []Decoder

func (c ChainDecoder) Probe(ctx context.Context, src model.MediaRef) (time.Duration, error) {
	var errs []error
	for _, d := range c {
		dur, err := d.Probe(ctx, src)
		if err == nil {
			return dur, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return 0, chainError(src, errs)
}

func (c ChainDecoder) Decode(ctx context.Context, src model.MediaRef, limit time.Duration) (*PCM, error) {
	var errs []error
	for _, d := range c {
		pcm, err := d.Decode(ctx, src, limit)
		if err == nil {
			return pcm, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, chainError(src, errs)
}

func chainError(src model.MediaRef, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: %s: no decoder configured", ErrDecodeFailed, src.Name())
	}
	err := errors.Join(errs...)
	if errors.Is(err, ErrDecodeFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDecodeFailed, src.Name(), err)
}
