/*
Package replication publishes the state of locally owned entities
and applies the state other peers publish.

Publishing is gated on change detection: any local write to a
transform marks the entity changed, and only changed entities are
sent. Transforms are always sent in full.
*/
package replication

import (
	"errors"
	"log"

	"github.com/HimbeerserverDE/meshworld/authority"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
	"github.com/HimbeerserverDE/meshworld/world"

	"github.com/google/uuid"
)

var (
	ErrNotOwner     = errors.New("prop is owned by another player")
	ErrPeerMismatch = errors.New("player belongs to another peer")
)

type Options struct {
	// KeyframeInterval is the number of ticks between reliable
	// copies of the local player's position
	KeyframeInterval int
}

type Sync struct {
	t    transport.Transport
	w    *world.World
	auth *authority.Resolver
	sink world.Sink
	opts Options

	tick     uint64
	keyframe bool

	// outbox holds structural frames per peer that have to arrive,
	// in order, but didn't fit into the channel yet
	outbox map[transport.PeerID][][]byte
}

func New(t transport.Transport, w *world.World, auth *authority.Resolver, sink world.Sink, opts Options) *Sync {
	if opts.KeyframeInterval <= 0 {
		opts.KeyframeInterval = 10
	}

	return &Sync{
		t:      t,
		w:      w,
		auth:   auth,
		sink:   sink,
		opts:   opts,
		outbox: make(map[transport.PeerID][][]byte),
	}
}

// Publish sends everything the local player owns that changed
// It is a no-op until there is a local player
func (s *Sync) Publish() {
	s.tick++
	s.flush()

	id, local, ok := s.w.Local()
	if !ok {
		return
	}

	s.publishPlayer(id, local)

	for _, prop := range s.w.Props() {
		if !s.w.Changed(prop) {
			continue
		}
		if !s.auth.Owned(prop) {
			s.w.ClearChanged(prop)
			continue
		}

		if s.publishProp(prop) {
			s.w.ClearChanged(prop)
		}
	}
}

func (s *Sync) playerPosition(id world.EntityID, local proto.PlayerUUID) *proto.PlayerPosition {
	t, _ := s.w.Transform(id)
	return &proto.PlayerPosition{
		PlayerUUID:     local,
		PeerID:         string(s.t.ID()),
		Position:       t.Position,
		Rotation:       t.Rotation,
		LinearVelocity: t.LinearVelocity,
	}
}

func (s *Sync) publishPlayer(id world.EntityID, local proto.PlayerUUID) {
	if s.w.Changed(id) {
		transport.Broadcast(s.t, transport.Unreliable, proto.Encode(s.playerPosition(id, local)))
		s.w.ClearChanged(id)
		s.keyframe = true
	}

	if s.keyframe && s.tick%uint64(s.opts.KeyframeInterval) == 0 {
		errs := transport.Broadcast(s.t, transport.Reliable, proto.Encode(s.playerPosition(id, local)))
		if len(errs) == 0 {
			s.keyframe = false
		}
	}
}

func (s *Sync) updateProp(id world.EntityID) *proto.UpdateProp {
	prop, _ := s.w.PropUUID(id)
	a, _ := s.w.Authority(id)
	t, _ := s.w.Transform(id)

	return &proto.UpdateProp{
		Authority:       a,
		PropUUID:        prop,
		Position:        t.Position,
		Rotation:        t.Rotation,
		LinearVelocity:  t.LinearVelocity,
		AngularVelocity: t.AngularVelocity,
	}
}

// publishProp sends the full state of a prop to every peer
// It returns false if a peer couldn't take it, in which case the
// prop stays changed and the fresh state is sent next tick
func (s *Sync) publishProp(id world.EntityID) bool {
	data := proto.Encode(s.updateProp(id))

	done := true
	for _, peer := range s.t.Peers() {
		// Don't overtake a spawn that is still waiting
		if len(s.outbox[peer]) > 0 {
			done = false
			continue
		}

		err := s.t.Send(peer, transport.Reliable, data)
		if errors.Is(err, transport.ErrChannelFull) {
			done = false
		} else if err != nil {
			log.Print(peer, ": ", err)
		}
	}

	return done
}

// ApplyPlayer applies the position of a remote player
// received from peer from, spawning the player if it is new
func (s *Sync) ApplyPlayer(from transport.PeerID, m *proto.PlayerPosition) error {
	if _, local, ok := s.w.Local(); ok && local == m.PlayerUUID {
		return nil
	}

	t := world.Transform{
		Position:       m.Position,
		Rotation:       m.Rotation,
		LinearVelocity: m.LinearVelocity,
	}

	id, ok := s.w.Player(m.PlayerUUID)
	if !ok {
		if m.PeerID != string(from) {
			log.Print(from, ": player ", m.PlayerUUID, " claims to be on peer ", m.PeerID)
		}

		s.w.AddPlayer(m.PlayerUUID, t, &world.ExternalPeer{UUID: m.PlayerUUID, Peer: from})
		s.sink.SpawnPlayer(m.PlayerUUID, t)

		log.Print(from, ": player ", m.PlayerUUID, " joined")
		return nil
	}

	if ext, ok := s.w.External(id); !ok || ext.Peer != from {
		return ErrPeerMismatch
	}

	s.w.ApplyTransform(id, t)
	s.sink.MovePlayer(m.PlayerUUID, t)

	return nil
}

// ApplySpawn creates a prop spawned by another peer
// Spawning a known prop does nothing
func (s *Sync) ApplySpawn(m *proto.SpawnCube) {
	t := world.At(m.Position)
	if _, created := s.w.AddProp(m.PropUUID, m.Authority, t); created {
		s.sink.SpawnProp(m.PropUUID, m.Authority, t)
	}
}

// SpawnLocal creates a new prop owned by the local player
// and announces it to every peer
func (s *Sync) SpawnLocal(pos proto.Vec3) (proto.PropUUID, error) {
	_, local, ok := s.w.Local()
	if !ok {
		return "", authority.ErrNoLocalPlayer
	}

	prop := proto.PropUUID(uuid.NewString())
	a := proto.Authority{Owner: local}
	t := world.At(pos)

	s.w.AddProp(prop, a, t)
	s.sink.SpawnProp(prop, a, t)

	s.enqueueAll(proto.Encode(&proto.SpawnCube{
		Authority: a,
		PropUUID:  prop,
		Position:  pos,
	}))

	return prop, nil
}

// DeleteLocal removes a prop owned by the local player everywhere
func (s *Sync) DeleteLocal(prop proto.PropUUID) error {
	id, ok := s.w.Prop(prop)
	if !ok {
		return authority.ErrUnknownProp
	}
	if !s.auth.Owned(id) {
		return ErrNotOwner
	}

	a, _ := s.w.Authority(id)

	s.auth.Release(prop)
	s.w.Despawn(id)
	s.sink.DespawnProp(prop)

	s.enqueueAll(proto.Encode(&proto.DeleteProp{
		Authority: a,
		PropUUID:  prop,
	}))

	return nil
}

// PeerJoined sends a new peer everything the local player owns
func (s *Sync) PeerJoined(peer transport.PeerID) {
	id, local, ok := s.w.Local()
	if !ok {
		return
	}

	for _, prop := range s.w.Props() {
		if !s.auth.Owned(prop) {
			continue
		}

		m := s.updateProp(prop)
		s.enqueue(peer, proto.Encode(&proto.SpawnCube{
			Authority: m.Authority,
			PropUUID:  m.PropUUID,
			Position:  m.Position,
		}))
		s.enqueue(peer, proto.Encode(m))
	}

	s.enqueue(peer, proto.Encode(s.playerPosition(id, local)))
}

// PeerLeft despawns the players of a disconnected peer
// and returns their uuids
func (s *Sync) PeerLeft(peer transport.PeerID) []proto.PlayerUUID {
	delete(s.outbox, peer)

	var gone []proto.PlayerUUID
	for _, id := range s.w.ExternalOf(peer) {
		player, _ := s.w.PlayerUUID(id)

		s.w.Despawn(id)
		s.sink.DespawnPlayer(player)
		gone = append(gone, player)

		log.Print(peer, ": player ", player, " left")
	}

	return gone
}

// Pending returns the number of structural frames waiting for a peer
func (s *Sync) Pending(peer transport.PeerID) int {
	return len(s.outbox[peer])
}

func (s *Sync) enqueue(peer transport.PeerID, data []byte) {
	s.outbox[peer] = append(s.outbox[peer], data)
}

func (s *Sync) enqueueAll(data []byte) {
	for _, peer := range s.t.Peers() {
		s.enqueue(peer, data)
	}
}

// flush sends queued structural frames until a channel is full
func (s *Sync) flush() {
	for peer, q := range s.outbox {
		for len(q) > 0 {
			err := s.t.Send(peer, transport.Reliable, q[0])
			if errors.Is(err, transport.ErrChannelFull) {
				break
			}
			if err != nil {
				log.Print(peer, ": ", err)
				q = nil
				break
			}

			q = q[1:]
		}

		if len(q) == 0 {
			delete(s.outbox, peer)
		} else {
			s.outbox[peer] = q
		}
	}
}
