package node

import (
	"log"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/world"
)

type inputKind uint8

const (
	inSetLocalPlayer inputKind = iota
	inLocalPlayerMoved
	inPropMoved
	inSpawnCube
	inGrab
	inRelease
	inDeleteProp
)

// An input is a local event waiting for the next tick
type input struct {
	kind   inputKind
	player proto.PlayerUUID
	prop   proto.PropUUID
	t      world.Transform
}

func (n *Node) queue(in input) {
	n.inputMu.Lock()
	defer n.inputMu.Unlock()

	n.inputs = append(n.inputs, in)
}

// SetLocalPlayer makes player the avatar controlled by this process
func (n *Node) SetLocalPlayer(player proto.PlayerUUID, t world.Transform) {
	n.queue(input{kind: inSetLocalPlayer, player: player, t: t})
}

// LocalPlayerMoved samples the transform of the local player
func (n *Node) LocalPlayerMoved(t world.Transform) {
	n.queue(input{kind: inLocalPlayerMoved, t: t})
}

// PropMoved samples the transform of a prop simulated locally
// It is ignored unless the local player owns the prop
func (n *Node) PropMoved(prop proto.PropUUID, t world.Transform) {
	n.queue(input{kind: inPropMoved, prop: prop, t: t})
}

// SpawnCube creates a new prop at t
func (n *Node) SpawnCube(t world.Transform) {
	n.queue(input{kind: inSpawnCube, t: t})
}

// Grab starts a local interaction with a prop, claiming its authority
func (n *Node) Grab(prop proto.PropUUID) {
	n.queue(input{kind: inGrab, prop: prop})
}

// Release ends a local interaction with a prop
func (n *Node) Release(prop proto.PropUUID) {
	n.queue(input{kind: inRelease, prop: prop})
}

// DeleteProp removes a prop owned by the local player
func (n *Node) DeleteProp(prop proto.PropUUID) {
	n.queue(input{kind: inDeleteProp, prop: prop})
}

// DropFile reads a file in the background and offers it to all peers
// as the local player's avatar
func (n *Node) DropFile(path string) {
	n.loader.Load(path)
}

func (n *Node) applyInputs() {
	n.inputMu.Lock()
	inputs := n.inputs
	n.inputs = nil
	n.inputMu.Unlock()

	for _, in := range inputs {
		if err := n.apply(in); err != nil {
			log.Print("input: ", err)
		}
	}
}

func (n *Node) apply(in input) error {
	switch in.kind {
	case inSetLocalPlayer:
		id, created := n.w.AddPlayer(in.player, in.t, nil)
		if !created {
			if _, ok := n.w.External(id); ok {
				log.Print(in.player, " is a remote player")
				return nil
			}
		}

		n.w.SetLocal(id)
		n.w.MarkChanged(id)
		log.Print("local player is ", in.player)
	case inLocalPlayerMoved:
		id, _, ok := n.w.Local()
		if !ok {
			return nil
		}
		n.w.SetTransform(id, in.t)
	case inPropMoved:
		id, ok := n.w.Prop(in.prop)
		if !ok || !n.auth.Owned(id) {
			return nil
		}
		n.w.SetTransform(id, in.t)
	case inSpawnCube:
		if _, _, ok := n.w.Local(); !ok {
			return nil
		}

		prop, err := n.sync.SpawnLocal(in.t.Position)
		if err != nil {
			return err
		}
		log.Print("spawned ", prop)
	case inGrab:
		if _, _, ok := n.w.Local(); !ok {
			return nil
		}

		a, err := n.auth.Claim(in.prop)
		if err != nil {
			return err
		}
		log.Print("grabbed ", in.prop, " at counter ", a.Counter)
	case inRelease:
		n.auth.Release(in.prop)
	case inDeleteProp:
		return n.sync.DeleteLocal(in.prop)
	}

	return nil
}
