package voice

import (
	"fmt"
	"sort"

	"github.com/HimbeerserverDE/meshworld/proto"
)

type decoderKey struct {
	player   proto.PlayerUUID
	channels int
}

// Playback decodes received frames into the Sinks of their players
type Playback struct {
	codec Codec
	out   Output

	decoders map[decoderKey]Decoder
	sinks    map[proto.PlayerUUID]Sink
}

func NewPlayback(codec Codec, out Output) *Playback {
	return &Playback{
		codec:    codec,
		out:      out,
		decoders: make(map[decoderKey]Decoder),
		sinks:    make(map[proto.PlayerUUID]Sink),
	}
}

func (p *Playback) decoder(player proto.PlayerUUID, channels int) (Decoder, error) {
	k := decoderKey{player, channels}
	if dec, ok := p.decoders[k]; ok {
		return dec, nil
	}

	dec, err := p.codec.NewDecoder(channels)
	if err != nil {
		return nil, err
	}

	p.decoders[k] = dec
	return dec, nil
}

// Receive decodes a frame and queues it for its player
// Frames of unknown players are dropped silently
func (p *Playback) Receive(m *proto.VoiceChat) error {
	channels := int(m.Channels)
	if !validChannels(channels) {
		return fmt.Errorf("%w: %d", ErrChannels, channels)
	}

	sink := p.out.VoiceSink(m.UUID)
	if sink == nil {
		return nil
	}

	dec, err := p.decoder(m.UUID, channels)
	if err != nil {
		return err
	}

	pcm := make([]float32, FrameSize*channels)
	n, err := dec.Decode(m.Data, pcm)
	if err != nil {
		return fmt.Errorf("decode voice of %s: %w", m.UUID, err)
	}
	if n <= 0 {
		return nil
	}
	if n > FrameSize {
		n = FrameSize
	}

	sink.Append(pcm[:n*channels], channels)
	p.sinks[m.UUID] = sink

	return nil
}

// Smooth adjusts the playback of every Sink to its backlog
func (p *Playback) Smooth() {
	for _, sink := range p.sinks {
		play, speed := Rate(sink.Len())
		if !play {
			sink.Pause()
			continue
		}

		sink.Play()
		sink.SetSpeed(speed)
	}
}

// Forget drops the decoders and Sink of a departed player
func (p *Playback) Forget(player proto.PlayerUUID) {
	delete(p.decoders, decoderKey{player, 1})
	delete(p.decoders, decoderKey{player, 2})
	delete(p.sinks, player)
}

// Queued returns the backlog of every Sink
func (p *Playback) Queued() map[proto.PlayerUUID]int {
	r := make(map[proto.PlayerUUID]int, len(p.sinks))
	for player, sink := range p.sinks {
		r[player] = sink.Len()
	}
	return r
}

// Players returns the players audio was received from
func (p *Playback) Players() []proto.PlayerUUID {
	r := make([]proto.PlayerUUID, 0, len(p.sinks))
	for player := range p.sinks {
		r = append(r, player)
	}

	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}
