package voice

import (
	"log"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
)

// Capture encodes microphone audio and broadcasts it
type Capture struct {
	t        transport.Transport
	enc      Encoder
	channels int
	feed     <-chan []float32

	buf    []float32
	warned bool
}

// NewCapture returns a Capture reading interleaved sample batches
// from feed
// Without a feed or a working encoder it does nothing
func NewCapture(t transport.Transport, codec Codec, channels int, feed <-chan []float32) *Capture {
	c := &Capture{
		t:        t,
		channels: channels,
		feed:     feed,
	}

	if !validChannels(channels) {
		log.Print("voice capture: ", ErrChannels, ": ", channels)
		c.warned = true
		return c
	}

	if codec != nil {
		enc, err := codec.NewEncoder(channels)
		if err != nil {
			log.Print("voice capture: ", err)
			c.warned = true
			return c
		}
		c.enc = enc
	}

	return c
}

func (c *Capture) frameLen() int {
	return FrameSize * c.channels
}

func (c *Capture) drain() {
	for {
		select {
		case samples, ok := <-c.feed:
			if !ok {
				log.Print("voice capture: microphone closed")
				c.feed = nil
				return
			}
			c.buf = append(c.buf, samples...)
		default:
			return
		}
	}
}

// Step sends every complete frame captured so far as player
// and returns the number of frames sent
// Without a player the captured audio is discarded
func (c *Capture) Step(player proto.PlayerUUID) int {
	if c.feed == nil || c.enc == nil {
		if !c.warned {
			log.Print("voice capture: no microphone or encoder, voice disabled")
			c.warned = true
		}
		return 0
	}

	c.drain()

	if player == "" {
		c.buf = c.buf[:0]
		return 0
	}

	sent := 0
	n := c.frameLen()

	off := 0
	for len(c.buf)-off >= n {
		frame := c.buf[off : off+n]
		off += n

		data, err := c.enc.Encode(frame)
		if err != nil {
			log.Print("voice capture: dropping frame: ", err)
			continue
		}

		transport.Broadcast(c.t, transport.Unreliable, proto.Encode(&proto.VoiceChat{
			Data:     data,
			UUID:     player,
			Channels: uint16(c.channels),
		}))
		sent++
	}

	c.buf = append(c.buf[:0], c.buf[off:]...)
	return sent
}

// Buffered returns the number of samples waiting for a complete frame
func (c *Capture) Buffered() int {
	return len(c.buf)
}
