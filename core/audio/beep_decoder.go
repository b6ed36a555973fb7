package audio

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"Bt1Deck/model"
)

const streamChunk = 1024

// BeepDecoder decodes mp3, wav, flac and ogg vorbis in-process.
type BeepDecoder struct{}

func NewBeepDecoder() *BeepDecoder {
	return &BeepDecoder{}
}

// openStream opens src and picks a beep decoder by file extension.
func openStream(src model.MediaRef) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(src.Name()))
	var decode func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)
	switch ext {
	case ".mp3":
		decode = mp3.Decode
	case ".wav":
		decode = func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(rc) }
	case ".flac":
		decode = func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(rc) }
	case ".ogg", ".oga":
		decode = vorbis.Decode
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	rc, err := src.Open()
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: open %s: %w", ErrDecodeFailed, src.Name(), err)
	}
	stream, format, err := decode(rc)
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: decode %s: %w", ErrDecodeFailed, src.Name(), err)
	}
	return stream, format, nil
}

// Probe returns the stream length reported by the decoder.
func (d *BeepDecoder) Probe(ctx context.Context, src model.MediaRef) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stream, format, err := openStream(src)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	n := stream.Len()
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s: unknown length", ErrDecodeFailed, src.Name())
	}
	return format.SampleRate.D(n), nil
}

// Decode reads the stream into per-channel float32 slices.
func (d *BeepDecoder) Decode(ctx context.Context, src model.MediaRef, limit time.Duration) (*PCM, error) {
	stream, format, err := openStream(src)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		channels = 2
	}
	maxFrames := -1
	if limit > 0 {
		maxFrames = format.SampleRate.N(limit)
	}
	capHint := stream.Len()
	if maxFrames >= 0 && (capHint <= 0 || capHint > maxFrames) {
		capHint = maxFrames
	}
	if capHint < 0 {
		capHint = 0
	}

	pcm := &PCM{Channels: make([][]float32, channels), SampleRate: int(format.SampleRate)}
	for c := range pcm.Channels {
		pcm.Channels[c] = make([]float32, 0, capHint)
	}

	buf := make([][2]float64, streamChunk)
	for maxFrames < 0 || pcm.Frames() < maxFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := len(buf)
		if maxFrames >= 0 && maxFrames-pcm.Frames() < want {
			want = maxFrames - pcm.Frames()
		}
		n, ok := stream.Stream(buf[:want])
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				pcm.Channels[c] = append(pcm.Channels[c], float32(buf[i][c]))
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: stream %s: %w", ErrDecodeFailed, src.Name(), err)
	}
	return pcm, nil
}
