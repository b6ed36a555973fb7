package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"Bt1Deck/model"
)

// FFmpegDecoder probes with ffprobe and decodes with ffmpeg. It handles the
// formats the in-process decoders do not (m4a, aac, opus).
type FFmpegDecoder struct {
	ffmpegPath string
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath}
}

func (d *FFmpegDecoder) ffprobePath() string {
	return strings.Replace(d.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Streams []struct {
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type streamInfo struct {
	duration   time.Duration
	channels   int
	sampleRate int
}

// input returns the ffmpeg input argument and, for non-file sources, the
// reader to pipe on stdin.
func input(src model.MediaRef) (string, io.ReadCloser, error) {
	if fs, ok := src.(*FileSource); ok {
		return fs.Path, nil, nil
	}
	rc, err := src.Open()
	if err != nil {
		return "", nil, fmt.Errorf("%w: open %s: %w", ErrDecodeFailed, src.Name(), err)
	}
	return "pipe:0", rc, nil
}

func (d *FFmpegDecoder) probe(ctx context.Context, src model.MediaRef) (*streamInfo, error) {
	in, stdin, err := input(src)
	if err != nil {
		return nil, err
	}
	if stdin != nil {
		defer stdin.Close()
	}

	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "format=duration:stream=channels,sample_rate",
		"-of", "json",
		in,
	}
	cmd := exec.CommandContext(ctx, d.ffprobePath(), args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %w: %s", ErrDecodeFailed, src.Name(), err, strings.TrimSpace(stderr.String()))
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output for %s: %w", ErrDecodeFailed, src.Name(), err)
	}
	if len(probeData.Streams) == 0 {
		return nil, fmt.Errorf("%w: %s: no audio stream", ErrDecodeFailed, src.Name())
	}

	info := &streamInfo{channels: probeData.Streams[0].Channels}
	if sr, err := strconv.Atoi(probeData.Streams[0].SampleRate); err == nil {
		info.sampleRate = sr
	}
	if probeData.Format.Duration != "" {
		secs, err := strconv.ParseFloat(probeData.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parse duration %q for %s: %w", ErrDecodeFailed, probeData.Format.Duration, src.Name(), err)
		}
		info.duration = time.Duration(secs * float64(time.Second))
	}
	return info, nil
}

// Probe uses ffprobe to get the duration of the source.
func (d *FFmpegDecoder) Probe(ctx context.Context, src model.MediaRef) (time.Duration, error) {
	info, err := d.probe(ctx, src)
	if err != nil {
		return 0, err
	}
	if info.duration <= 0 {
		return 0, fmt.Errorf("%w: %s: duration not found", ErrDecodeFailed, src.Name())
	}
	return info.duration, nil
}

// Decode runs ffmpeg to produce 32-bit float PCM at the source's own rate.
func (d *FFmpegDecoder) Decode(ctx context.Context, src model.MediaRef, limit time.Duration) (*PCM, error) {
	info, err := d.probe(ctx, src)
	if err != nil {
		return nil, err
	}
	channels := info.channels
	if channels < 1 {
		channels = 1
	}
	if info.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s: unknown sample rate", ErrDecodeFailed, src.Name())
	}

	in, stdin, err := input(src)
	if err != nil {
		return nil, err
	}
	if stdin != nil {
		defer stdin.Close()
	}

	args := []string{"-i", in}
	if limit > 0 {
		args = append(args, "-t", strconv.FormatFloat(limit.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(info.sampleRate),
		"-loglevel", "error",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s: %w: %s", ErrDecodeFailed, src.Name(), err, strings.TrimSpace(stderr.String()))
	}

	return deinterleave(out, channels, info.sampleRate), nil
}

// deinterleave splits little-endian f32 interleaved samples into channels.
func deinterleave(raw []byte, channels, sampleRate int) *PCM {
	frameBytes := 4 * channels
	frames := len(raw) / frameBytes
	pcm := &PCM{Channels: make([][]float32, channels), SampleRate: sampleRate}
	for c := range pcm.Channels {
		pcm.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*4
			pcm.Channels[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
		}
	}
	return pcm
}
