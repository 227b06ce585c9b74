/*
Package voice streams microphone audio between peers.

Captured samples are cut into frames of FrameSize samples per channel,
compressed and broadcast on the unreliable lane. Received frames are
decoded into a per-player Sink whose playback speed is adjusted every
tick to keep a small backlog without letting it grow.
*/
package voice

import (
	"errors"

	"github.com/HimbeerserverDE/meshworld/proto"
)

const (
	SampleRate = 48000

	// FrameSize is the number of samples per channel in one frame
	FrameSize = 2880
)

var ErrChannels = errors.New("unsupported channel count")

type Encoder interface {
	// Encode compresses one frame of interleaved samples
	Encode(pcm []float32) ([]byte, error)
}

type Decoder interface {
	// Decode decompresses one frame into pcm
	// and returns the number of samples per channel
	Decode(data []byte, pcm []float32) (int, error)
}

// A Codec creates the encoders and decoders for one audio format
type Codec interface {
	NewEncoder(channels int) (Encoder, error)
	NewDecoder(channels int) (Decoder, error)
}

// A Sink plays back the audio of one player
type Sink interface {
	// Append queues one decoded frame
	Append(samples []float32, channels int)

	// Len returns the number of queued frames
	Len() int

	Play()
	Pause()
	SetSpeed(speed float32)
}

// Output provides the Sinks of remote players
type Output interface {
	// VoiceSink returns the Sink of a player
	// or nil if the player isn't known
	VoiceSink(uuid proto.PlayerUUID) Sink
}

// Rate returns the playback state for a Sink with queued frames
// Sinks about to run dry are paused, short queues are slowed
// down and long ones sped up in proportion to their length
func Rate(queued int) (play bool, speed float32) {
	switch {
	case queued <= 1:
		return false, 1
	case queued <= 3:
		return true, 0.95
	case queued >= 10:
		return true, float32(queued) / 10
	default:
		return true, 1
	}
}

func validChannels(n int) bool {
	return n == 1 || n == 2
}
