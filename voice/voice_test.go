package voice

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
)

// rawCodec stores the first sample of a frame as a single byte
// Frames whose first sample is negative fail to encode
type rawCodec struct{}

type rawEncoder struct{}

type rawDecoder struct {
	channels int
}

func (rawCodec) NewEncoder(channels int) (Encoder, error) { return rawEncoder{}, nil }

func (rawCodec) NewDecoder(channels int) (Decoder, error) {
	return &rawDecoder{channels: channels}, nil
}

func (rawEncoder) Encode(pcm []float32) ([]byte, error) {
	if pcm[0] < 0 {
		return nil, errors.New("bad frame")
	}
	return []byte{byte(pcm[0])}, nil
}

func (d *rawDecoder) Decode(data []byte, pcm []float32) (int, error) {
	if len(data) != 1 {
		return 0, errors.New("corrupt frame")
	}
	for i := range pcm {
		pcm[i] = float32(data[0])
	}
	return len(pcm) / d.channels, nil
}

type brokenCodec struct{ rawCodec }

func (brokenCodec) NewEncoder(int) (Encoder, error) { return nil, errors.New("no encoder") }

type sinks map[proto.PlayerUUID]*QueueSink

func (s sinks) VoiceSink(uuid proto.PlayerUUID) Sink {
	if sink, ok := s[uuid]; ok {
		return sink
	}
	return nil
}

func TestRate(t *testing.T) {
	tests := []struct {
		queued int
		play   bool
		speed  float32
	}{
		{0, false, 1},
		{1, false, 1},
		{2, true, 0.95},
		{3, true, 0.95},
		{4, true, 1},
		{9, true, 1},
		{10, true, 1},
		{11, true, 1.1},
		{20, true, 2},
	}

	for _, tt := range tests {
		play, speed := Rate(tt.queued)
		if play != tt.play || math.Abs(float64(speed-tt.speed)) > 1e-6 {
			t.Errorf("%d queued\nexpected: %v %v\nactual: %v %v", tt.queued, tt.play, tt.speed, play, speed)
		}
	}

	if _, speed := Rate(10); speed != 1.0 {
		t.Fatalf("expected exactly 1.0 at 10 frames, got %v", speed)
	}
}

func frame(channels int, v float32) []float32 {
	f := make([]float32, FrameSize*channels)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestCaptureFrames(t *testing.T) {
	hub := transport.NewMemHub()
	a := hub.Join("a", 0)
	b := hub.Join("b", 0)

	feed := make(chan []float32, 10)
	c := NewCapture(a, rawCodec{}, 2, feed)

	// One and a half frames, split across batches
	whole := frame(2, 7)
	feed <- whole[:1000]
	feed <- whole[1000:]
	feed <- frame(2, 3)[:FrameSize]

	if n := c.Step("alice"); n != 1 {
		t.Fatalf("expected one frame, got %d", n)
	}
	if c.Buffered() != FrameSize {
		t.Fatalf("expected half a frame buffered, got %d samples", c.Buffered())
	}

	pkts := b.Recv(transport.Unreliable)
	if len(pkts) != 1 {
		t.Fatalf("expected one unreliable packet, got %d", len(pkts))
	}
	m, err := proto.Decode(pkts[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	vc := m.(*proto.VoiceChat)
	if vc.UUID != "alice" || vc.Channels != 2 || len(vc.Data) != 1 || vc.Data[0] != 7 {
		t.Fatalf("unexpected frame %#v", vc)
	}
	if len(b.Recv(transport.Reliable)) != 0 {
		t.Fatal("voice must never use the reliable lane")
	}
}

func TestCaptureDropsFailedFrames(t *testing.T) {
	hub := transport.NewMemHub()
	a := hub.Join("a", 0)
	b := hub.Join("b", 0)

	feed := make(chan []float32, 10)
	c := NewCapture(a, rawCodec{}, 1, feed)

	feed <- frame(1, -1)
	feed <- frame(1, 5)

	if n := c.Step("alice"); n != 1 {
		t.Fatalf("expected the second frame to be sent, got %d", n)
	}
	if got := len(b.Recv(transport.Unreliable)); got != 1 {
		t.Fatalf("expected one packet, got %d", got)
	}
}

func TestCaptureDegrades(t *testing.T) {
	hub := transport.NewMemHub()
	a := hub.Join("a", 0)
	hub.Join("b", 0)

	tests := []struct {
		name string
		c    *Capture
	}{
		{"no microphone", NewCapture(a, rawCodec{}, 1, nil)},
		{"no encoder", NewCapture(a, brokenCodec{}, 1, make(chan []float32))},
		{"no codec", NewCapture(a, nil, 1, make(chan []float32))},
		{"bad channels", NewCapture(a, rawCodec{}, 3, make(chan []float32))},
	}

	for _, tt := range tests {
		for i := 0; i < 3; i++ {
			if n := tt.c.Step("alice"); n != 0 {
				t.Errorf("%s: expected no-op, sent %d", tt.name, n)
			}
		}
	}
}

func TestCaptureWithoutPlayer(t *testing.T) {
	hub := transport.NewMemHub()
	a := hub.Join("a", 0)

	feed := make(chan []float32, 1)
	c := NewCapture(a, rawCodec{}, 1, feed)

	feed <- frame(1, 1)
	if n := c.Step(""); n != 0 || c.Buffered() != 0 {
		t.Fatalf("expected audio to be discarded, sent %d, buffered %d", n, c.Buffered())
	}
}

func TestPlayback(t *testing.T) {
	alice := NewQueueSink()
	p := NewPlayback(rawCodec{}, sinks{"alice": alice})

	if err := p.Receive(&proto.VoiceChat{Data: []byte{4}, UUID: "alice", Channels: 2}); err != nil {
		t.Fatal(err)
	}
	if alice.Len() != 1 {
		t.Fatalf("expected one queued frame, got %d", alice.Len())
	}
	if s := alice.frames[0]; len(s) != FrameSize*2 || s[0] != 4 {
		t.Fatalf("unexpected frame of %d samples", len(s))
	}

	if err := p.Receive(&proto.VoiceChat{Data: []byte{4}, UUID: "alice", Channels: 3}); !errors.Is(err, ErrChannels) {
		t.Fatalf("expected ErrChannels, got %v", err)
	}
	if err := p.Receive(&proto.VoiceChat{Data: []byte{1, 2}, UUID: "alice", Channels: 1}); err == nil {
		t.Fatal("expected decode failure")
	}
	if err := p.Receive(&proto.VoiceChat{Data: []byte{4}, UUID: "nobody", Channels: 1}); err != nil {
		t.Fatalf("unknown players should be dropped silently, got %v", err)
	}
	if alice.Len() != 1 {
		t.Fatalf("failed frames were queued, got %d", alice.Len())
	}
}

func TestSmooth(t *testing.T) {
	tests := []struct {
		frames int
		paused bool
		speed  float32
	}{
		{1, true, 1},
		{3, false, 0.95},
		{10, false, 1},
		{15, false, 1.5},
	}

	for _, tt := range tests {
		sink := NewQueueSink()
		p := NewPlayback(rawCodec{}, sinks{"alice": sink})

		for i := 0; i < tt.frames; i++ {
			p.Receive(&proto.VoiceChat{Data: []byte{1}, UUID: "alice", Channels: 1})
		}
		p.Smooth()

		if sink.Paused() != tt.paused || math.Abs(float64(sink.Speed()-tt.speed)) > 1e-6 {
			t.Errorf("%d frames\nexpected: paused=%v speed=%v\nactual: paused=%v speed=%v",
				tt.frames, tt.paused, tt.speed, sink.Paused(), sink.Speed())
		}
	}
}

func TestForget(t *testing.T) {
	p := NewPlayback(rawCodec{}, sinks{"alice": NewQueueSink()})
	p.Receive(&proto.VoiceChat{Data: []byte{1}, UUID: "alice", Channels: 1})

	p.Forget("alice")
	if len(p.Players()) != 0 || len(p.decoders) != 0 {
		t.Fatal("player not forgotten")
	}
}

func TestQueueSinkAdvance(t *testing.T) {
	s := NewQueueSink()
	for i := 0; i < 3; i++ {
		s.Append(frame(1, 0), 1)
	}

	// A frame is 60ms
	if n := s.Advance(50 * time.Millisecond); n != 0 {
		t.Fatalf("expected no finished frame, got %d", n)
	}
	if n := s.Advance(10 * time.Millisecond); n != 1 {
		t.Fatalf("expected one finished frame, got %d", n)
	}

	s.Pause()
	if n := s.Advance(time.Second); n != 0 || s.Len() != 2 {
		t.Fatal("paused sink advanced")
	}

	s.Play()
	s.SetSpeed(2)
	if n := s.Advance(60 * time.Millisecond); n != 2 || s.Len() != 0 {
		t.Fatalf("expected double speed to finish both frames, got %d", n)
	}
}
