package transport

import (
	"bytes"
	"log"
	"net"

	"github.com/anon55555/mt/rudp"
)

// rudp channels
const (
	chReliable rudp.Channel = iota
	chUnreliable
)

// The first byte of every rudp packet tells what it carries
const (
	frameReliable byte = iota
	frameUnreliable
	frameHello
	frameSrpSB
	frameSrpM
	frameAccept
	frameDeny
)

// A Peer is an admitted connection to another mesh member
type Peer struct {
	*rudp.Conn

	id     PeerID
	dialer PeerID

	rel   chan []byte
	unrel chan []byte

	// send is Conn.Send, replaced in tests
	send func(rudp.Pkt) (<-chan struct{}, error)

	// replaced is set when a newer connection to the same PeerID
	// took over, guarded by the Mesh mutex
	replaced bool
}

func newPeer(c *rudp.Conn, dialer PeerID, queueLen int) *Peer {
	return &Peer{
		Conn:   c,
		dialer: dialer,
		rel:    make(chan []byte, queueLen),
		unrel:  make(chan []byte, queueLen),
		send:   c.Send,
	}
}

// MeshID returns the PeerID the remote process announced
func (p *Peer) MeshID() PeerID { return p.id }

// Addr returns the remote address of the Peer
func (p *Peer) Addr() net.Addr { return p.Conn.RemoteAddr() }

// queue hands a frame to the writer of lane without blocking
func (p *Peer) queue(lane Lane, data []byte) error {
	ch := p.rel
	hdr := frameReliable
	if lane == Unreliable {
		ch = p.unrel
		hdr = frameUnreliable
	}

	frame := make([]byte, 1+len(data))
	frame[0] = hdr
	copy(frame[1:], data)

	select {
	case ch <- frame:
		return nil
	default:
		return ErrChannelFull
	}
}

// writeReliable sends one reliable frame at a time and waits for
// its ack, so a slow peer fills the queue instead of rudp's buffers
func (p *Peer) writeReliable() {
	for {
		select {
		case <-p.Closed():
			return
		case frame := <-p.rel:
			ack, err := p.send(rudp.Pkt{
				Reader:  bytes.NewReader(frame),
				PktInfo: rudp.PktInfo{Channel: chReliable},
			})
			if err != nil {
				// Skipping the frame would break ordering
				log.Print(p.Addr(), ": ", err)
				p.Close()
				return
			}

			select {
			case <-ack:
			case <-p.Closed():
				return
			}
		}
	}
}

func (p *Peer) writeUnreliable() {
	for {
		select {
		case <-p.Closed():
			return
		case frame := <-p.unrel:
			_, err := p.Send(rudp.Pkt{
				Reader: bytes.NewReader(frame),
				PktInfo: rudp.PktInfo{
					Channel: chUnreliable,
					Unrel:   true,
				},
			})
			if err != nil {
				log.Print(p.Addr(), ": ", err)
			}
		}
	}
}

// sendControl sends a handshake frame and waits for the ack
func sendControl(c *rudp.Conn, frame []byte) error {
	ack, err := c.Send(rudp.Pkt{
		Reader:  bytes.NewReader(frame),
		PktInfo: rudp.PktInfo{Channel: chReliable},
	})
	if err != nil {
		return err
	}

	select {
	case <-ack:
		return nil
	case <-c.Closed():
		return net.ErrClosed
	}
}
