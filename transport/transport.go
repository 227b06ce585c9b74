/*
Package transport moves opaque frames between the peers of a small,
fully connected mesh. Every peer pair shares one connection carrying
two lanes: a reliable lane that delivers in order and a best-effort
unreliable lane.
*/
package transport

import (
	"errors"
	"sort"
)

var (
	ErrChannelFull = errors.New("channel full")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrClosed      = errors.New("transport closed")
	ErrDenied      = errors.New("access denied")
)

// A PeerID identifies a running process in the mesh
// It is exchanged during the handshake, so all peers agree on it
type PeerID string

type Lane uint8

const (
	Reliable Lane = iota
	Unreliable
)

func (l Lane) String() string {
	if l == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// A Packet is a frame received from a peer
type Packet struct {
	From PeerID
	Lane Lane
	Data []byte
}

type EventKind uint8

const (
	PeerConnected EventKind = iota
	PeerDisconnected
)

type PeerEvent struct {
	Peer PeerID
	Kind EventKind
}

// A Transport is polled by the tick loop
// None of its methods block
type Transport interface {
	// ID returns the PeerID of the local process
	ID() PeerID

	// Peers returns the connected peers in sorted order
	Peers() []PeerID

	// Send queues data for peer
	// It returns ErrChannelFull if the lane can't take more data right now
	Send(peer PeerID, lane Lane, data []byte) error

	// Recv returns and removes all frames received on lane
	Recv(lane Lane) []Packet

	// Events returns and removes all pending connection events
	Events() []PeerEvent
}

// Broadcast sends data to every connected peer
// It returns the errors of the peers the send failed for
func Broadcast(t Transport, lane Lane, data []byte) map[PeerID]error {
	var errs map[PeerID]error
	for _, peer := range t.Peers() {
		if err := t.Send(peer, lane, data); err != nil {
			if errs == nil {
				errs = make(map[PeerID]error)
			}
			errs[peer] = err
		}
	}
	return errs
}

func sortPeers(ids []PeerID) []PeerID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
