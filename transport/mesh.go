package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/anon55555/mt/rudp"
	"github.com/cenkalti/backoff"
)

var errAlreadyConnected = errors.New("already connected to peer")

// Options configure a Mesh
type Options struct {
	// ID is announced to every peer
	ID PeerID

	// Passphrase, if set, is required from every peer
	Passphrase []byte

	// QueueLen bounds the frames waiting per peer and lane
	QueueLen int

	HandshakeTimeout time.Duration

	// DialTimeout bounds the retries of Dial
	DialTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.QueueLen <= 0 {
		o.QueueLen = 64
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 8 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = time.Minute
	}
}

// A Mesh is a Transport over rudp connections
type Mesh struct {
	opts Options
	pc   net.PacketConn
	l    *rudp.Listener

	mu     sync.Mutex
	peers  map[PeerID]*Peer
	inbox  [2][]Packet
	events []PeerEvent
	closed bool
}

// Listen returns a Mesh accepting peers on pc
// Call Serve to start accepting
func Listen(pc net.PacketConn, opts Options) *Mesh {
	opts.setDefaults()

	return &Mesh{
		opts:  opts,
		pc:    pc,
		l:     rudp.Listen(pc),
		peers: make(map[PeerID]*Peer),
	}
}

// Addr returns the local address peers connect to
func (m *Mesh) Addr() net.Addr { return m.pc.LocalAddr() }

func (m *Mesh) ID() PeerID { return m.opts.ID }

func (m *Mesh) Peers() []PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := make([]PeerID, 0, len(m.peers))
	for id := range m.peers {
		r = append(r, id)
	}
	return sortPeers(r)
}

func (m *Mesh) Send(peer PeerID, lane Lane, data []byte) error {
	m.mu.Lock()
	p, ok := m.peers[peer]
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return ErrUnknownPeer
	}

	return p.queue(lane, data)
}

func (m *Mesh) Recv(lane Lane) []Packet {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.inbox[lane]
	m.inbox[lane] = nil
	return r
}

func (m *Mesh) Events() []PeerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.events
	m.events = nil
	return r
}

// Serve accepts connecting peers until the Mesh is closed
func (m *Mesh) Serve() error {
	for {
		c, err := m.l.Accept()
		if err != nil {
			if m.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			log.Print(err)
			continue
		}

		log.Print(c.RemoteAddr(), " connecting")
		go m.admit(c)
	}
}

func (m *Mesh) admit(c *rudp.Conn) {
	p := newPeer(c, "", m.opts.QueueLen)
	if err := m.serverHandshake(p); err != nil {
		if !isClosed(err) {
			log.Print(c.RemoteAddr(), ": ", err)
		}
		p.Close()
		return
	}

	log.Print(p.Addr(), " joined as ", p.id)
	m.start(p)
}

// Dial connects to the peer listening at addr, retrying with
// exponential backoff until it succeeds, is denied, DialTimeout
// passes or ctx is cancelled
// Being denied because the peer is already connected isn't an error
func (m *Mesh) Dial(ctx context.Context, addr string) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = m.opts.DialTimeout

	op := func() error {
		if m.isClosed() {
			return backoff.Permanent(ErrClosed)
		}

		err := m.dial(addr)
		var de *DenyError
		if errors.As(err, &de) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))

	var de *DenyError
	if errors.As(err, &de) && de.Reason == DenyAlreadyConnected {
		return nil
	}
	return err
}

func (m *Mesh) dial(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}

	p := newPeer(rudp.Connect(conn), m.opts.ID, m.opts.QueueLen)
	if err := m.clientHandshake(p); err != nil {
		p.Close()
		return err
	}

	if err := m.register(p); err != nil {
		p.Close()
		if errors.Is(err, errAlreadyConnected) {
			return &DenyError{Reason: DenyAlreadyConnected}
		}
		return err
	}

	log.Print("connected to ", p.id, " at ", addr)
	m.start(p)

	return nil
}

// register makes p the connection to its PeerID
// Of two connections between the same processes the one dialed
// by the lower PeerID wins, so both sides keep the same one
func (m *Mesh) register(p *Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if p.id == m.opts.ID {
		return errAlreadyConnected
	}

	old, ok := m.peers[p.id]
	if !ok {
		m.peers[p.id] = p
		m.events = append(m.events, PeerEvent{Peer: p.id, Kind: PeerConnected})
		return nil
	}

	preferred := m.opts.ID
	if p.id < preferred {
		preferred = p.id
	}

	if p.dialer != preferred || old.dialer == preferred {
		return errAlreadyConnected
	}

	old.replaced = true
	old.Close()
	m.peers[p.id] = p

	// Frames still queued on old are gone, so the new
	// connection starts over as if the peer had rejoined
	m.events = append(m.events,
		PeerEvent{Peer: p.id, Kind: PeerDisconnected},
		PeerEvent{Peer: p.id, Kind: PeerConnected},
	)

	return nil
}

// remove forgets p unless it has been replaced already
func (m *Mesh) remove(p *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.replaced || m.peers[p.id] != p {
		return
	}

	delete(m.peers, p.id)
	m.events = append(m.events, PeerEvent{Peer: p.id, Kind: PeerDisconnected})
}

func (m *Mesh) start(p *Peer) {
	go p.writeReliable()
	go p.writeUnreliable()
	go m.read(p)
}

// read moves the frames received from p into the inbox
func (m *Mesh) read(p *Peer) {
	for {
		pkt, err := p.Recv()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				m.mu.Lock()
				replaced := p.replaced
				m.mu.Unlock()

				if !replaced {
					log.Print(p.id, " at ", p.Addr(), " disconnected")
				}

				m.remove(p)
				return
			}

			log.Print(p.Addr(), ": ", err)
			continue
		}

		data, err := io.ReadAll(pkt)
		if err != nil || len(data) == 0 {
			continue
		}

		var lane Lane
		switch data[0] {
		case frameReliable:
			lane = Reliable
		case frameUnreliable:
			lane = Unreliable
		default:
			// Late handshake frame
			continue
		}

		m.mu.Lock()
		m.inbox[lane] = append(m.inbox[lane], Packet{From: p.id, Lane: lane, Data: data[1:]})
		m.mu.Unlock()
	}
}

func (m *Mesh) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// Close disconnects all peers and stops accepting new ones
// It doesn't close the underlying PacketConn
func (m *Mesh) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}

	return m.l.Close()
}
