// Package opus implements voice.Codec with libopus
package opus

import (
	libopus "gopkg.in/hraban/opus.v2"

	"github.com/HimbeerserverDE/meshworld/voice"
)

// maxPacket is the largest packet libopus recommends for one frame
const maxPacket = 4000

// Codec creates VoIP tuned Opus encoders and decoders
type Codec struct {
	// Bitrate in bits per second, 0 leaves the libopus default
	Bitrate int
}

func (c Codec) NewEncoder(channels int) (voice.Encoder, error) {
	enc, err := libopus.NewEncoder(voice.SampleRate, channels, libopus.AppVoIP)
	if err != nil {
		return nil, err
	}

	if c.Bitrate > 0 {
		if err := enc.SetBitrate(c.Bitrate); err != nil {
			return nil, err
		}
	}

	return &encoder{enc: enc, buf: make([]byte, maxPacket)}, nil
}

func (c Codec) NewDecoder(channels int) (voice.Decoder, error) {
	dec, err := libopus.NewDecoder(voice.SampleRate, channels)
	if err != nil {
		return nil, err
	}

	return &decoder{dec: dec}, nil
}

type encoder struct {
	enc *libopus.Encoder
	buf []byte
}

func (e *encoder) Encode(pcm []float32) ([]byte, error) {
	n, err := e.enc.EncodeFloat32(pcm, e.buf)
	if err != nil {
		return nil, err
	}

	data := make([]byte, n)
	copy(data, e.buf[:n])
	return data, nil
}

type decoder struct {
	dec *libopus.Decoder
}

func (d *decoder) Decode(data []byte, pcm []float32) (int, error) {
	return d.dec.DecodeFloat32(data, pcm)
}
