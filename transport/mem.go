package transport

import "sync"

// A MemHub connects MemNodes inside one process
// Reliable frames wait in a bounded per-link queue until Flush,
// which is how backpressure is modelled
type MemHub struct {
	mu    sync.Mutex
	nodes map[PeerID]*MemNode

	// DropUnreliable discards every unreliable frame
	DropUnreliable bool
}

type MemNode struct {
	hub      *MemHub
	id       PeerID
	capacity int

	pending map[PeerID][][]byte
	inbox   [2][]Packet
	events  []PeerEvent
}

func NewMemHub() *MemHub {
	return &MemHub{nodes: make(map[PeerID]*MemNode)}
}

// Join adds a node to the hub and connects it to all other nodes
// capacity limits the reliable frames in flight per link, 0 means unlimited
func (h *MemHub) Join(id PeerID, capacity int) *MemNode {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := &MemNode{
		hub:      h,
		id:       id,
		capacity: capacity,
		pending:  make(map[PeerID][][]byte),
	}

	for _, other := range h.nodes {
		other.events = append(other.events, PeerEvent{Peer: id, Kind: PeerConnected})
		n.events = append(n.events, PeerEvent{Peer: other.id, Kind: PeerConnected})
	}
	h.nodes[id] = n

	return n
}

// Leave disconnects a node from everyone else
// Frames still queued from or to it are lost
func (h *MemHub) Leave(id PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.nodes[id]; !ok {
		return
	}
	delete(h.nodes, id)

	for _, other := range h.nodes {
		delete(other.pending, id)
		other.events = append(other.events, PeerEvent{Peer: id, Kind: PeerDisconnected})
	}
}

// Flush delivers all queued reliable frames in order
func (h *MemHub) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, n := range h.nodes {
		for to, frames := range n.pending {
			dst, ok := h.nodes[to]
			if !ok {
				continue
			}
			for _, f := range frames {
				dst.inbox[Reliable] = append(dst.inbox[Reliable], Packet{From: n.id, Lane: Reliable, Data: f})
			}
			delete(n.pending, to)
		}
	}
}

func (n *MemNode) ID() PeerID { return n.id }

func (n *MemNode) Peers() []PeerID {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()

	if _, ok := n.hub.nodes[n.id]; !ok {
		return nil
	}

	var r []PeerID
	for id := range n.hub.nodes {
		if id != n.id {
			r = append(r, id)
		}
	}
	return sortPeers(r)
}

func (n *MemNode) Send(peer PeerID, lane Lane, data []byte) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()

	if _, ok := n.hub.nodes[n.id]; !ok {
		return ErrClosed
	}
	dst, ok := n.hub.nodes[peer]
	if !ok || peer == n.id {
		return ErrUnknownPeer
	}

	frame := append([]byte{}, data...)

	if lane == Unreliable {
		if !n.hub.DropUnreliable {
			dst.inbox[Unreliable] = append(dst.inbox[Unreliable], Packet{From: n.id, Lane: Unreliable, Data: frame})
		}
		return nil
	}

	if n.capacity > 0 && len(n.pending[peer]) >= n.capacity {
		return ErrChannelFull
	}
	n.pending[peer] = append(n.pending[peer], frame)

	return nil
}

func (n *MemNode) Recv(lane Lane) []Packet {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()

	r := n.inbox[lane]
	n.inbox[lane] = nil
	return r
}

func (n *MemNode) Events() []PeerEvent {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()

	r := n.events
	n.events = nil
	return r
}
