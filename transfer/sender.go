package transfer

import (
	"errors"
	"log"
	"sort"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
)

// An outbound payload, already encoded into frames
type payload struct {
	name   string
	frames [][]byte
}

func newPayload(player proto.PlayerUUID, name string, data []byte, chunkSize int) *payload {
	p := &payload{name: name}

	p.frames = append(p.frames, proto.Encode(&proto.AssetLen{
		UUID: player,
		Len:  uint64(len(data)),
	}))
	for _, chunk := range Split(data, chunkSize) {
		p.frames = append(p.frames, proto.Encode(&proto.AssetPart{
			UUID: player,
			Name: name,
			Data: chunk,
		}))
	}
	p.frames = append(p.frames, proto.Encode(&proto.AssetDone{}))

	return p
}

// A cursor is the position of one peer in its queue of payloads
type cursor struct {
	queue []*payload
	next  int
}

type Sender struct {
	t    transport.Transport
	opts Options

	last    *payload
	cursors map[transport.PeerID]*cursor
}

func NewSender(t transport.Transport, opts Options) *Sender {
	opts.setDefaults()

	return &Sender{
		t:       t,
		opts:    opts,
		cursors: make(map[transport.PeerID]*cursor),
	}
}

// Offer queues data for every connected peer
// It is remembered so that peers joining later get it from OfferTo
func (s *Sender) Offer(player proto.PlayerUUID, name string, data []byte) {
	p := newPayload(player, name, data, s.opts.ChunkSize)
	s.last = p

	for _, peer := range s.t.Peers() {
		s.queue(peer, p)
	}

	log.Printf("offering %s (%d bytes in %d frames)", name, len(data), len(p.frames))
}

// OfferTo sends the most recent payload to a single peer
func (s *Sender) OfferTo(peer transport.PeerID) {
	if s.last == nil {
		return
	}

	if c, ok := s.cursors[peer]; ok {
		for _, p := range c.queue {
			if p == s.last {
				return
			}
		}
	}

	s.queue(peer, s.last)
}

func (s *Sender) queue(peer transport.PeerID, p *payload) {
	c, ok := s.cursors[peer]
	if !ok {
		c = &cursor{}
		s.cursors[peer] = c
	}

	c.queue = append(c.queue, p)
}

// PeerLeft forgets everything queued for peer
func (s *Sender) PeerLeft(peer transport.PeerID) {
	delete(s.cursors, peer)
}

// Step makes up to AttemptsPerTick send attempts per peer
// A full channel ends the peer's turn and the same frame
// is attempted first on the next Step
func (s *Sender) Step() {
	for peer, c := range s.cursors {
		for attempt := 0; attempt < s.opts.AttemptsPerTick && len(c.queue) > 0; attempt++ {
			p := c.queue[0]

			err := s.t.Send(peer, transport.Reliable, p.frames[c.next])
			if errors.Is(err, transport.ErrChannelFull) {
				break
			}
			if err != nil {
				log.Print(peer, ": ", err)
				delete(s.cursors, peer)
				break
			}

			c.next++
			if c.next == len(p.frames) {
				log.Print(peer, ": sent ", p.name)

				c.queue = c.queue[1:]
				c.next = 0
			}
		}

		if len(c.queue) == 0 {
			delete(s.cursors, peer)
		}
	}
}

// Outbound describes the transfer currently sent to a peer
type Outbound struct {
	Peer   transport.PeerID `json:"peer"`
	Name   string           `json:"name"`
	Sent   int              `json:"sent"`
	Frames int              `json:"frames"`
	Queued int              `json:"queued"`
}

// Outbound returns the state of every peer with pending frames
func (s *Sender) Outbound() []Outbound {
	var r []Outbound
	for peer, c := range s.cursors {
		r = append(r, Outbound{
			Peer:   peer,
			Name:   c.queue[0].name,
			Sent:   c.next,
			Frames: len(c.queue[0].frames),
			Queued: len(c.queue),
		})
	}

	sort.Slice(r, func(i, j int) bool { return r[i].Peer < r[j].Peer })
	return r
}

// Idle reports whether nothing is waiting to be sent
func (s *Sender) Idle() bool {
	return len(s.cursors) == 0
}
