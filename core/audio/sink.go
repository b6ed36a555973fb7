package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Sink is where the transport sends audio. Lock/Unlock guard streamer
// state against the sink's own reads.
type Sink interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// SpeakerSink plays through the system audio device.
type SpeakerSink struct {
	rate beep.SampleRate
}

// NewSpeakerSink initializes the speaker at rate with the given buffer length.
func NewSpeakerSink(rate beep.SampleRate, buffer time.Duration) (*SpeakerSink, error) {
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &SpeakerSink{rate: rate}, nil
}

func (s *SpeakerSink) SampleRate() beep.SampleRate { return s.rate }
func (s *SpeakerSink) Play(st beep.Streamer)        { speaker.Play(st) }
func (s *SpeakerSink) Clear()                       { speaker.Clear() }
func (s *SpeakerSink) Lock()                        { speaker.Lock() }
func (s *SpeakerSink) Unlock()                      { speaker.Unlock() }

// Close releases the audio device.
func (s *SpeakerSink) Close() {
	speaker.Close()
}

// NullSink consumes audio at real-time pace without an output device, so
// position and completion behave as on a real speaker.
type NullSink struct {
	rate beep.SampleRate

	mu    sync.Mutex
	mixer beep.Mixer
	buf   [][2]float64
}

func NewNullSink(rate beep.SampleRate) *NullSink {
	return &NullSink{rate: rate}
}

func (s *NullSink) SampleRate() beep.SampleRate { return s.rate }

func (s *NullSink) Play(st beep.Streamer) {
	s.mu.Lock()
	s.mixer.Add(st)
	s.mu.Unlock()
}

func (s *NullSink) Clear() {
	s.mu.Lock()
	s.mixer.Clear()
	s.mu.Unlock()
}

func (s *NullSink) Lock()   { s.mu.Lock() }
func (s *NullSink) Unlock() { s.mu.Unlock() }

// Drain pulls n samples through the mixer and discards them.
func (s *NullSink) Drain(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.buf) < n {
		s.buf = make([][2]float64, n)
	}
	s.mixer.Stream(s.buf[:n])
}

// Run drains in 20ms ticks until ctx is cancelled.
func (s *NullSink) Run(ctx context.Context) {
	const tick = 20 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	n := s.rate.N(tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Drain(n)
		}
	}
}
