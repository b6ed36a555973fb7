package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"Bt1Deck/logger"
	"Bt1Deck/model"
)

// ErrNothingLoaded is returned by transport calls that need a loaded track.
var ErrNothingLoaded = errors.New("no track loaded")

// Transport is the playback facility: one loaded track, play/pause/seek/volume,
// a passive position read and a completion callback.
type Transport struct {
	sink Sink

	mu         sync.Mutex
	stream     beep.StreamSeekCloser
	format     beep.Format
	ctrl       *beep.Ctrl
	head       *playhead
	base       int // source frame the playhead counts from
	volume     *effects.Volume
	level      float64
	playing    bool
	generation uint64
	onFinished func()
}

// NewTransport creates a transport writing to sink at full volume.
func NewTransport(sink Sink) *Transport {
	return &Transport{sink: sink, level: 1}
}

// OnFinished registers the callback run when a track plays to its end.
// It runs on its own goroutine.
func (t *Transport) OnFinished(fn func()) {
	t.mu.Lock()
	t.onFinished = fn
	t.mu.Unlock()
}

// Load replaces the current track with src, paused at the start.
func (t *Transport) Load(src model.MediaRef) error {
	stream, format, err := openStream(src)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	t.stream = stream
	t.format = format
	t.ctrl = &beep.Ctrl{Streamer: stream, Paused: true}

	var s beep.Streamer = t.ctrl
	if rate := t.sink.SampleRate(); rate != format.SampleRate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}
	t.head = &playhead{Streamer: s, ctrl: t.ctrl}
	t.base = 0
	t.volume = &effects.Volume{Streamer: t.head, Base: 2}
	applyLevel(t.volume, t.level)

	t.generation++
	gen := t.generation
	t.sink.Play(beep.Seq(t.volume, beep.Callback(func() {
		// called with the sink locked
		go t.finished(gen)
	})))

	logger.Debug("track loaded",
		logger.String("source", src.Name()),
		logger.Int("sampleRate", int(format.SampleRate)),
		logger.Int("channels", format.NumChannels))
	return nil
}

func (t *Transport) finished(gen uint64) {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return
	}
	t.playing = false
	cb := t.onFinished
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Play resumes the loaded track.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl == nil {
		return
	}
	t.sink.Lock()
	t.ctrl.Paused = false
	t.sink.Unlock()
	t.playing = true
}

// Pause halts playback, keeping the position.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl == nil {
		return
	}
	t.sink.Lock()
	t.ctrl.Paused = true
	t.sink.Unlock()
	t.playing = false
}

// Stop unloads the current track.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Transport) stopLocked() {
	if t.stream == nil {
		return
	}
	t.generation++
	t.sink.Clear()
	if err := t.stream.Close(); err != nil {
		logger.Warn("close audio stream", logger.ErrorField(err))
	}
	t.stream = nil
	t.ctrl = nil
	t.head = nil
	t.volume = nil
	t.playing = false
}

// Seek moves to pos, clamped to the track bounds.
func (t *Transport) Seek(pos time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream == nil {
		return ErrNothingLoaded
	}
	n := t.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	t.sink.Lock()
	defer t.sink.Unlock()
	if l := t.stream.Len(); l > 0 && n > l {
		n = l
	}
	if err := t.stream.Seek(n); err != nil {
		return fmt.Errorf("seek to %v: %w", pos, err)
	}
	t.base = n
	t.head.frames = 0
	return nil
}

// SeekFraction seeks to a fraction in [0, 1] of the track length.
func (t *Transport) SeekFraction(f float64) error {
	_, dur := t.Position()
	if dur <= 0 {
		return ErrNothingLoaded
	}
	f = math.Max(0, math.Min(1, f))
	return t.Seek(time.Duration(f * float64(dur)))
}

// SetVolume sets a linear volume in [0, 1].
func (t *Transport) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = v
	if t.volume == nil {
		return
	}
	t.sink.Lock()
	applyLevel(t.volume, v)
	t.sink.Unlock()
}

// Volume returns the linear volume.
func (t *Transport) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// effects.Volume gains by Base^Volume, so a linear level maps to log2.
func applyLevel(v *effects.Volume, level float64) {
	if level <= 0 {
		v.Silent = true
		return
	}
	v.Silent = false
	v.Volume = math.Log2(level)
}

// Position returns the playback position and the track length. The position
// counts frames the sink has pulled, not frames read from the source, which
// a resampler reads ahead of.
func (t *Transport) Position() (pos, dur time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream == nil {
		return 0, 0
	}
	t.sink.Lock()
	played, l := t.head.frames, t.stream.Len()
	t.sink.Unlock()

	p := t.base + int(int64(played)*int64(t.format.SampleRate)/int64(t.sink.SampleRate()))
	if l > 0 && p > l {
		p = l
	}
	return t.format.SampleRate.D(p), t.format.SampleRate.D(l)
}

// playhead counts output frames while the track is not paused.
// Stream runs with the sink locked.
type playhead struct {
	beep.Streamer
	ctrl   *beep.Ctrl
	frames int
}

func (h *playhead) Stream(samples [][2]float64) (int, bool) {
	n, ok := h.Streamer.Stream(samples)
	if !h.ctrl.Paused {
		h.frames += n
	}
	return n, ok
}

// Playing reports whether the loaded track is playing.
func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}
