package transfer

import (
	"fmt"
	"log"
	"sort"

	"github.com/HimbeerserverDE/meshworld/assets"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
)

// A session is an inbound transfer being reassembled
type session struct {
	player proto.PlayerUUID
	name   string
	total  uint64
	data   []byte
}

type Receiver struct {
	store    *assets.Store
	progress Progress
	opts     Options

	sessions map[transport.PeerID]*session
}

func NewReceiver(store *assets.Store, progress Progress, opts Options) *Receiver {
	opts.setDefaults()

	return &Receiver{
		store:    store,
		progress: progress,
		opts:     opts,
		sessions: make(map[transport.PeerID]*session),
	}
}

// Handle processes an asset message received from peer from
func (r *Receiver) Handle(from transport.PeerID, m proto.Msg) error {
	switch m := m.(type) {
	case *proto.AssetLen:
		return r.open(from, m)
	case *proto.AssetPart:
		return r.part(from, m)
	case *proto.AssetDone:
		return r.done(from)
	}

	return fmt.Errorf("not an asset message: %s", m.Kind())
}

func (r *Receiver) open(from transport.PeerID, m *proto.AssetLen) error {
	if m.Len > r.opts.MaxLen {
		delete(r.sessions, from)
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, m.Len, r.opts.MaxLen)
	}

	if old, ok := r.sessions[from]; ok {
		log.Printf("%s: abandoning transfer from %s at %d/%d", from, old.player, len(old.data), old.total)
	}

	// Preallocate at most one chunk, the announcement can't be trusted
	prealloc := m.Len
	if prealloc > uint64(r.opts.ChunkSize) {
		prealloc = uint64(r.opts.ChunkSize)
	}

	r.sessions[from] = &session{
		player: m.UUID,
		total:  m.Len,
		data:   make([]byte, 0, prealloc),
	}
	r.progress.TransferProgress(m.UUID, 0, m.Len)

	return nil
}

func (r *Receiver) part(from transport.PeerID, m *proto.AssetPart) error {
	s, ok := r.sessions[from]
	if !ok {
		return ErrNoSession
	}
	if m.UUID != s.player {
		return ErrPlayerMismatch
	}

	if uint64(len(s.data))+uint64(len(m.Data)) > s.total {
		delete(r.sessions, from)
		return ErrOverflow
	}

	s.data = append(s.data, m.Data...)
	s.name = m.Name
	r.progress.TransferProgress(s.player, uint64(len(s.data)), s.total)

	return nil
}

func (r *Receiver) done(from transport.PeerID) error {
	s, ok := r.sessions[from]
	if !ok {
		return ErrNoSession
	}
	delete(r.sessions, from)

	if uint64(len(s.data)) != s.total {
		return fmt.Errorf("%w: got %d of %d bytes", ErrLengthMismatch, len(s.data), s.total)
	}

	h, err := r.store.Put(s.name, s.data)
	if err != nil {
		return err
	}

	log.Print(from, ": received ", h.Name, " from ", s.player, " as ", h.Digest)
	r.progress.AssetLoaded(s.player, h)

	return nil
}

// PeerLeft drops the session of a disconnected peer
func (r *Receiver) PeerLeft(peer transport.PeerID) {
	delete(r.sessions, peer)
}

// Inbound describes a transfer being received
type Inbound struct {
	Peer     transport.PeerID `json:"peer"`
	Player   proto.PlayerUUID `json:"player"`
	Name     string           `json:"name"`
	Received uint64           `json:"received"`
	Total    uint64           `json:"total"`
}

// Inbound returns the state of every open session
func (r *Receiver) Inbound() []Inbound {
	var l []Inbound
	for peer, s := range r.sessions {
		l = append(l, Inbound{
			Peer:     peer,
			Player:   s.player,
			Name:     s.name,
			Received: uint64(len(s.data)),
			Total:    s.total,
		})
	}

	sort.Slice(l, func(i, j int) bool { return l[i].Peer < l[j].Peer })
	return l
}

// Data returns the bytes received so far from peer
func (r *Receiver) Data(peer transport.PeerID) ([]byte, bool) {
	s, ok := r.sessions[peer]
	if !ok {
		return nil, false
	}
	return s.data, true
}
