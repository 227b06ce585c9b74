package node

import (
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transfer"
	"github.com/HimbeerserverDE/meshworld/transport"
	"github.com/HimbeerserverDE/meshworld/world"
)

type PlayerState struct {
	UUID      proto.PlayerUUID `json:"uuid"`
	Peer      transport.PeerID `json:"peer,omitempty"`
	Local     bool             `json:"local"`
	Transform world.Transform  `json:"transform"`
}

type PropState struct {
	UUID      proto.PropUUID  `json:"uuid"`
	Authority proto.Authority `json:"authority"`
	Transform world.Transform `json:"transform"`
	Owned     bool            `json:"owned"`
	Held      bool            `json:"held"`
}

// A Snapshot is the state of a Node at the end of a tick
type Snapshot struct {
	Tick  uint64             `json:"tick"`
	ID    transport.PeerID   `json:"id"`
	Peers []transport.PeerID `json:"peers"`

	Players []PlayerState `json:"players"`
	Props   []PropState   `json:"props"`

	Inbound  []transfer.Inbound  `json:"inbound"`
	Outbound []transfer.Outbound `json:"outbound"`

	Voice map[proto.PlayerUUID]int `json:"voice"`

	Routed  uint64 `json:"routed"`
	Dropped uint64 `json:"dropped"`
}

// Snapshot returns the state at the end of the last tick
// The result is never modified afterwards
func (n *Node) Snapshot() Snapshot {
	n.snapMu.Lock()
	defer n.snapMu.Unlock()

	return n.snap
}

func (n *Node) takeSnapshot() {
	s := Snapshot{
		Tick:     n.tick,
		ID:       n.t.ID(),
		Peers:    n.t.Peers(),
		Inbound:  n.receiver.Inbound(),
		Outbound: n.sender.Outbound(),
		Routed:   n.router.Routed(),
		Dropped:  n.router.Dropped(),
	}

	localID, _, _ := n.w.Local()
	for _, id := range n.w.Players() {
		uuid, _ := n.w.PlayerUUID(id)
		t, _ := n.w.Transform(id)
		ext, _ := n.w.External(id)

		s.Players = append(s.Players, PlayerState{
			UUID:      uuid,
			Peer:      ext.Peer,
			Local:     id == localID,
			Transform: t,
		})
	}

	for _, id := range n.w.Props() {
		uuid, _ := n.w.PropUUID(id)
		a, _ := n.w.Authority(id)
		t, _ := n.w.Transform(id)

		s.Props = append(s.Props, PropState{
			UUID:      uuid,
			Authority: a,
			Transform: t,
			Owned:     n.auth.Owned(id),
			Held:      n.auth.Holding(uuid),
		})
	}

	if n.playback != nil {
		s.Voice = n.playback.Queued()
	}

	n.snapMu.Lock()
	n.snap = s
	n.snapMu.Unlock()
}
