package voice

import (
	"sync"
	"time"
)

// QueueSink is a Sink that keeps frames in memory
// Time only passes when Advance is called
type QueueSink struct {
	mu sync.Mutex

	frames   [][]float32
	channels []int
	offset   time.Duration

	paused bool
	speed  float32
}

func NewQueueSink() *QueueSink {
	return &QueueSink{speed: 1}
}

func (s *QueueSink) Append(samples []float32, channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, samples)
	s.channels = append(s.channels, channels)
}

func (s *QueueSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.frames)
}

func (s *QueueSink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = false
}

func (s *QueueSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = true
}

func (s *QueueSink) SetSpeed(speed float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.speed = speed
}

// Paused reports whether playback is paused
func (s *QueueSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paused
}

// Speed returns the playback speed
func (s *QueueSink) Speed() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.speed
}

func frameDuration(samples, channels int) time.Duration {
	return time.Duration(samples/channels) * time.Second / SampleRate
}

// Advance plays d of wall time at the current speed
// and returns the number of frames finished
func (s *QueueSink) Advance(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return 0
	}

	s.offset += time.Duration(float64(d) * float64(s.speed))

	done := 0
	for len(s.frames) > 0 {
		fd := frameDuration(len(s.frames[0]), s.channels[0])
		if s.offset < fd {
			break
		}

		s.offset -= fd
		s.frames = s.frames[1:]
		s.channels = s.channels[1:]
		done++
	}

	if len(s.frames) == 0 {
		s.offset = 0
	}

	return done
}
