package transport

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/HimbeerserverDE/srp"
	"github.com/anon55555/mt/rudp"
)

// Deny reasons
const (
	DenyWrongPassphrase uint8 = iota + 1
	DenyPassphraseMismatch
	DenyAlreadyConnected
	DenyUnexpectedData
	DenyShutdown
)

var denyReasons = map[uint8]string{
	DenyWrongPassphrase:    "wrong passphrase",
	DenyPassphraseMismatch: "passphrase required on one side only",
	DenyAlreadyConnected:   "already connected",
	DenyUnexpectedData:     "unexpected data",
	DenyShutdown:           "shutting down",
}

var errHandshakeTimeout = errors.New("handshake timed out")

// A DenyError is returned by Dial if the remote peer refused us
type DenyError struct {
	Reason uint8
}

func (e *DenyError) Error() string {
	if s, ok := denyReasons[e.Reason]; ok {
		return "access denied: " + s
	}
	return fmt.Sprintf("access denied: reason %d", e.Reason)
}

func (e *DenyError) Unwrap() error { return ErrDenied }

func appendBytes16(b, field []byte) []byte {
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(field)))
	return append(append(b, l...), field...)
}

// readBytes16 splits a uint16 length prefixed field off b
func readBytes16(b []byte) (field, rest []byte, ok bool) {
	if len(b) < 2 {
		return nil, nil, false
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+n {
		return nil, nil, false
	}
	return b[2 : 2+n], b[2+n:], true
}

func denyFrame(reason uint8) []byte {
	return []byte{frameDeny, reason}
}

// srpName is the SRP user name of a peer
func srpName(id PeerID) []byte {
	return []byte(strings.ToLower(string(id)))
}

// recvControl returns the next handshake frame
// Unreliable frames that overtake the handshake are discarded
func recvControl(c *rudp.Conn, deadline time.Time) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	for {
		ch := make(chan result, 1)
		go func() {
			pkt, err := c.Recv()
			if err != nil {
				ch <- result{err: err}
				return
			}

			data, err := io.ReadAll(pkt)
			ch <- result{data: data, err: err}
		}()

		var r result
		select {
		case r = <-ch:
		case <-time.After(time.Until(deadline)):
			c.Close()
			return nil, errHandshakeTimeout
		}

		if r.err != nil {
			return nil, r.err
		}
		if len(r.data) == 0 || r.data[0] == frameUnreliable {
			continue
		}
		return r.data, nil
	}
}

// clientHandshake authenticates p to the peer it dialed
// and fills in its PeerID
func (m *Mesh) clientHandshake(p *Peer) error {
	deadline := time.Now().Add(m.opts.HandshakeTimeout)

	var A, a []byte
	if len(m.opts.Passphrase) > 0 {
		var err error
		A, a, err = srp.InitiateHandshake()
		if err != nil {
			return err
		}
	}

	hello := appendBytes16([]byte{frameHello}, []byte(m.opts.ID))
	hello = appendBytes16(hello, A)
	if err := sendControl(p.Conn, hello); err != nil {
		return err
	}

	for {
		data, err := recvControl(p.Conn, deadline)
		if err != nil {
			return err
		}

		switch data[0] {
		case frameSrpSB:
			if A == nil {
				sendControl(p.Conn, denyFrame(DenyPassphraseMismatch))
				return &DenyError{Reason: DenyPassphraseMismatch}
			}

			s, rest, ok := readBytes16(data[1:])
			if !ok {
				return &DenyError{Reason: DenyUnexpectedData}
			}
			B, _, ok := readBytes16(rest)
			if !ok {
				return &DenyError{Reason: DenyUnexpectedData}
			}

			K, err := srp.CompleteHandshake(A, a, srpName(m.opts.ID), m.opts.Passphrase, s, B)
			if err != nil {
				return err
			}

			M := srp.CalculateM([]byte(m.opts.ID), s, A, B, K)
			if err := sendControl(p.Conn, appendBytes16([]byte{frameSrpM}, M)); err != nil {
				return err
			}
		case frameAccept:
			id, _, ok := readBytes16(data[1:])
			if !ok || len(id) == 0 {
				return &DenyError{Reason: DenyUnexpectedData}
			}

			p.id = PeerID(id)
			return nil
		case frameDeny:
			if len(data) < 2 {
				return ErrDenied
			}
			return &DenyError{Reason: data[1]}
		default:
			return &DenyError{Reason: DenyUnexpectedData}
		}
	}
}

// serverHandshake admits the dialing peer p
// On success p is registered with the Mesh
func (m *Mesh) serverHandshake(p *Peer) error {
	deadline := time.Now().Add(m.opts.HandshakeTimeout)

	deny := func(reason uint8) error {
		sendControl(p.Conn, denyFrame(reason))
		return &DenyError{Reason: reason}
	}

	data, err := recvControl(p.Conn, deadline)
	if err != nil {
		return err
	}
	if data[0] != frameHello {
		return deny(DenyUnexpectedData)
	}

	id, rest, ok := readBytes16(data[1:])
	if !ok || len(id) == 0 {
		return deny(DenyUnexpectedData)
	}
	A, _, ok := readBytes16(rest)
	if !ok {
		return deny(DenyUnexpectedData)
	}

	p.id = PeerID(id)
	p.dialer = p.id

	if (len(A) > 0) != (len(m.opts.Passphrase) > 0) {
		return deny(DenyPassphraseMismatch)
	}

	if len(A) > 0 {
		s, v, err := srp.NewClient(srpName(p.id), m.opts.Passphrase)
		if err != nil {
			return err
		}

		B, _, K, err := srp.Handshake(A, v)
		if err != nil {
			return deny(DenyUnexpectedData)
		}

		sb := appendBytes16([]byte{frameSrpSB}, s)
		sb = appendBytes16(sb, B)
		if err := sendControl(p.Conn, sb); err != nil {
			return err
		}

		data, err := recvControl(p.Conn, deadline)
		if err != nil {
			return err
		}
		if data[0] == frameDeny {
			return ErrDenied
		}
		if data[0] != frameSrpM {
			return deny(DenyUnexpectedData)
		}

		M, _, ok := readBytes16(data[1:])
		if !ok {
			return deny(DenyUnexpectedData)
		}

		M2 := srp.CalculateM([]byte(p.id), s, A, B, K)
		if subtle.ConstantTimeCompare(M, M2) != 1 {
			return deny(DenyWrongPassphrase)
		}
	}

	if err := m.register(p); err != nil {
		if errors.Is(err, ErrClosed) {
			return deny(DenyShutdown)
		}
		return deny(DenyAlreadyConnected)
	}

	if err := sendControl(p.Conn, appendBytes16([]byte{frameAccept}, []byte(m.opts.ID))); err != nil {
		m.remove(p)
		return err
	}

	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, errHandshakeTimeout)
}
