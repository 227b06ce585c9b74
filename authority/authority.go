/*
Package authority decides whose updates to a shared prop are accepted.

Every prop carries an Authority record. An incoming record is accepted
if its counter is at least the current one, transform included, and
discarded entirely otherwise. Claiming a prop locally bumps the counter
and takes ownership without waiting for anyone to agree. Concurrent
claims with equal counters are resolved by whichever record is applied
last, which depends on arrival order and may differ between peers.
*/
package authority

import (
	"errors"
	"log"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/world"
)

var (
	ErrNoLocalPlayer = errors.New("no local player")
	ErrUnknownProp   = errors.New("unknown prop")
)

type Result uint8

const (
	Accepted Result = iota
	Stale
	Unknown
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

type Resolver struct {
	w    *world.World
	sink world.Sink

	held map[world.EntityID]struct{}
}

func New(w *world.World, sink world.Sink) *Resolver {
	return &Resolver{
		w:    w,
		sink: sink,
		held: make(map[world.EntityID]struct{}),
	}
}

// accept reports whether incoming may replace the record of prop id
func (r *Resolver) accept(id world.EntityID, incoming proto.Authority) bool {
	cur, _ := r.w.Authority(id)
	return cur.Counter <= incoming.Counter
}

// Apply applies an UpdateProp received from another peer
func (r *Resolver) Apply(m *proto.UpdateProp) Result {
	id, ok := r.w.Prop(m.PropUUID)
	if !ok {
		return Unknown
	}

	if !r.accept(id, m.Authority) {
		return Stale
	}

	t := world.Transform{
		Position:        m.Position,
		Rotation:        m.Rotation,
		LinearVelocity:  m.LinearVelocity,
		AngularVelocity: m.AngularVelocity,
	}

	r.w.SetAuthority(id, m.Authority)
	r.w.ApplyTransform(id, t)

	r.sink.MoveProp(m.PropUUID, m.Authority, t)
	r.checkLoss(id, m.PropUUID, m.Authority)

	return Accepted
}

// Delete applies a DeleteProp received from another peer
// It follows the same counter rule as Apply
func (r *Resolver) Delete(m *proto.DeleteProp) Result {
	id, ok := r.w.Prop(m.PropUUID)
	if !ok {
		return Unknown
	}

	if !r.accept(id, m.Authority) {
		return Stale
	}

	if _, ok := r.held[id]; ok {
		delete(r.held, id)
		r.sink.ReleaseProp(m.PropUUID)
	}
	r.w.Despawn(id)
	r.sink.DespawnProp(m.PropUUID)

	return Accepted
}

// checkLoss cancels the local interaction with a prop
// whose authority just went to someone else
func (r *Resolver) checkLoss(id world.EntityID, uuid proto.PropUUID, a proto.Authority) {
	if _, ok := r.held[id]; !ok {
		return
	}

	_, local, ok := r.w.Local()
	if ok && a.Owner == local {
		return
	}

	log.Print(uuid, ": authority lost to ", a.Owner, " at counter ", a.Counter)

	delete(r.held, id)
	r.sink.ReleaseProp(uuid)
}

// Claim takes authority over a prop for the local player
// The counter is bumped past whatever record was accepted last,
// races with other claims are settled by counter comparison.
// The new record is published by the next replication tick
func (r *Resolver) Claim(uuid proto.PropUUID) (proto.Authority, error) {
	_, local, ok := r.w.Local()
	if !ok {
		return proto.Authority{}, ErrNoLocalPlayer
	}

	id, ok := r.w.Prop(uuid)
	if !ok {
		return proto.Authority{}, ErrUnknownProp
	}

	a, _ := r.w.Authority(id)
	if a.Owner != local {
		a.Counter++
		a.Owner = local
		r.w.SetAuthority(id, a)
	}

	r.held[id] = struct{}{}
	r.w.MarkChanged(id)

	return a, nil
}

// Release ends the local interaction with a prop
// Authority stays with the local player until someone else claims it
func (r *Resolver) Release(uuid proto.PropUUID) {
	id, ok := r.w.Prop(uuid)
	if !ok {
		return
	}

	if _, ok := r.held[id]; ok {
		delete(r.held, id)
		r.w.MarkChanged(id)
	}
}

// Holding reports whether the local player is interacting with a prop
func (r *Resolver) Holding(uuid proto.PropUUID) bool {
	id, ok := r.w.Prop(uuid)
	if !ok {
		return false
	}

	_, ok = r.held[id]
	return ok
}

// Owned reports whether the local player holds the authority of prop id
func (r *Resolver) Owned(id world.EntityID) bool {
	_, local, ok := r.w.Local()
	if !ok {
		return false
	}

	a, ok := r.w.Authority(id)
	return ok && a.Owner == local
}
