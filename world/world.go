/*
Package world is the arena of replicated entities.

Entities are plain integer ids. Everything attached to an entity lives
in a side table keyed by its id, so "has X" means "present in table X".
The World is owned by the tick loop and is not safe for concurrent use.
*/
package world

import (
	"sort"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
)

// An EntityID is never reused within a World
type EntityID uint32

// Transform is the replicated physical state of a player or prop
type Transform struct {
	Position        proto.Vec3
	Rotation        proto.Quat
	LinearVelocity  proto.Vec3
	AngularVelocity proto.Vec3
}

// At returns a resting Transform at pos
func At(pos proto.Vec3) Transform {
	return Transform{Position: pos, Rotation: proto.Identity}
}

// ExternalPeer tags the local representation of a remote player
// with the connection its updates arrive on
type ExternalPeer struct {
	UUID proto.PlayerUUID
	Peer transport.PeerID
}

type World struct {
	next EntityID

	transforms  map[EntityID]Transform
	authorities map[EntityID]proto.Authority
	external    map[EntityID]ExternalPeer
	changed     map[EntityID]struct{}

	propIDs   map[proto.PropUUID]EntityID
	propUUIDs map[EntityID]proto.PropUUID

	playerIDs   map[proto.PlayerUUID]EntityID
	playerUUIDs map[EntityID]proto.PlayerUUID

	local EntityID
}

func New() *World {
	return &World{
		transforms:  make(map[EntityID]Transform),
		authorities: make(map[EntityID]proto.Authority),
		external:    make(map[EntityID]ExternalPeer),
		changed:     make(map[EntityID]struct{}),
		propIDs:     make(map[proto.PropUUID]EntityID),
		propUUIDs:   make(map[EntityID]proto.PropUUID),
		playerIDs:   make(map[proto.PlayerUUID]EntityID),
		playerUUIDs: make(map[EntityID]proto.PlayerUUID),
	}
}

func (w *World) spawn(t Transform) EntityID {
	w.next++
	w.transforms[w.next] = t
	return w.next
}

// Despawn removes an entity and everything attached to it
func (w *World) Despawn(id EntityID) {
	if uuid, ok := w.propUUIDs[id]; ok {
		delete(w.propIDs, uuid)
		delete(w.propUUIDs, id)
	}
	if uuid, ok := w.playerUUIDs[id]; ok {
		delete(w.playerIDs, uuid)
		delete(w.playerUUIDs, id)
	}
	if id == w.local {
		w.local = 0
	}

	delete(w.transforms, id)
	delete(w.authorities, id)
	delete(w.external, id)
	delete(w.changed, id)
}

// Exists reports whether id refers to a live entity
func (w *World) Exists(id EntityID) bool {
	_, ok := w.transforms[id]
	return ok
}

// AddProp creates a prop
// It returns false and the existing entity if the uuid is taken
func (w *World) AddProp(uuid proto.PropUUID, a proto.Authority, t Transform) (EntityID, bool) {
	if id, ok := w.propIDs[uuid]; ok {
		return id, false
	}

	id := w.spawn(t)
	w.authorities[id] = a
	w.propIDs[uuid] = id
	w.propUUIDs[id] = uuid

	return id, true
}

// Prop looks up a prop by its uuid
func (w *World) Prop(uuid proto.PropUUID) (EntityID, bool) {
	id, ok := w.propIDs[uuid]
	return id, ok
}

// PropUUID returns the uuid of a prop entity
func (w *World) PropUUID(id EntityID) (proto.PropUUID, bool) {
	uuid, ok := w.propUUIDs[id]
	return uuid, ok
}

// Props returns all prop entities in creation order
func (w *World) Props() []EntityID {
	r := make([]EntityID, 0, len(w.propUUIDs))
	for id := range w.propUUIDs {
		r = append(r, id)
	}
	sortIDs(r)
	return r
}

// AddPlayer creates a player
// ext is nil for the local player
func (w *World) AddPlayer(uuid proto.PlayerUUID, t Transform, ext *ExternalPeer) (EntityID, bool) {
	if id, ok := w.playerIDs[uuid]; ok {
		return id, false
	}

	id := w.spawn(t)
	w.playerIDs[uuid] = id
	w.playerUUIDs[id] = uuid
	if ext != nil {
		w.external[id] = *ext
	}

	return id, true
}

// Player looks up a player by its uuid
func (w *World) Player(uuid proto.PlayerUUID) (EntityID, bool) {
	id, ok := w.playerIDs[uuid]
	return id, ok
}

// PlayerUUID returns the uuid of a player entity
func (w *World) PlayerUUID(id EntityID) (proto.PlayerUUID, bool) {
	uuid, ok := w.playerUUIDs[id]
	return uuid, ok
}

// SetLocal marks a player entity as the one controlled by this process
func (w *World) SetLocal(id EntityID) {
	if _, ok := w.playerUUIDs[id]; ok {
		w.local = id
	}
}

// Local returns the local player
// ok is false until one has been set
func (w *World) Local() (id EntityID, uuid proto.PlayerUUID, ok bool) {
	if w.local == 0 {
		return 0, "", false
	}
	return w.local, w.playerUUIDs[w.local], true
}

// External returns the ExternalPeer tag of a remote player
func (w *World) External(id EntityID) (ExternalPeer, bool) {
	ext, ok := w.external[id]
	return ext, ok
}

// ExternalOf returns the remote players whose updates arrive from peer
func (w *World) ExternalOf(peer transport.PeerID) []EntityID {
	var r []EntityID
	for id, ext := range w.external {
		if ext.Peer == peer {
			r = append(r, id)
		}
	}
	sortIDs(r)
	return r
}

// Players returns all player entities in creation order
func (w *World) Players() []EntityID {
	r := make([]EntityID, 0, len(w.playerUUIDs))
	for id := range w.playerUUIDs {
		r = append(r, id)
	}
	sortIDs(r)
	return r
}

func (w *World) Transform(id EntityID) (Transform, bool) {
	t, ok := w.transforms[id]
	return t, ok
}

// SetTransform writes the transform of an entity and marks it changed
// Any write counts as a change, even if the value is the same
func (w *World) SetTransform(id EntityID, t Transform) {
	if !w.Exists(id) {
		return
	}
	w.transforms[id] = t
	w.changed[id] = struct{}{}
}

// ApplyTransform writes a transform received from another peer
// It doesn't mark the entity changed, so it isn't echoed back
func (w *World) ApplyTransform(id EntityID, t Transform) {
	if !w.Exists(id) {
		return
	}
	w.transforms[id] = t
}

func (w *World) Authority(id EntityID) (proto.Authority, bool) {
	a, ok := w.authorities[id]
	return a, ok
}

// SetAuthority replaces the authority record of a prop
func (w *World) SetAuthority(id EntityID, a proto.Authority) {
	if _, ok := w.authorities[id]; !ok {
		return
	}
	w.authorities[id] = a
}

// MarkChanged flags an entity for the next publish
func (w *World) MarkChanged(id EntityID) {
	if w.Exists(id) {
		w.changed[id] = struct{}{}
	}
}

// Changed reports whether an entity was written since the last ClearChanged
func (w *World) Changed(id EntityID) bool {
	_, ok := w.changed[id]
	return ok
}

func (w *World) ClearChanged(id EntityID) {
	delete(w.changed, id)
}

func sortIDs(ids []EntityID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
