/*
Package node ties the meshworld components together and runs them
in a fixed order once per tick.

All state is owned by the goroutine calling Tick. The engine inputs
may be called from any goroutine, they are queued and applied during
the next tick. Snapshot is safe to call from anywhere.
*/
package node

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/HimbeerserverDE/meshworld/assets"
	"github.com/HimbeerserverDE/meshworld/authority"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/replication"
	"github.com/HimbeerserverDE/meshworld/router"
	"github.com/HimbeerserverDE/meshworld/transfer"
	"github.com/HimbeerserverDE/meshworld/transport"
	"github.com/HimbeerserverDE/meshworld/voice"
	"github.com/HimbeerserverDE/meshworld/world"
)

// An Engine is the presentation layer driven by a Node
type Engine interface {
	world.Sink
	voice.Output
	transfer.Progress
}

type Options struct {
	Replication replication.Options
	Transfer    transfer.Options

	// Codec is used for voice, nil disables it
	Codec voice.Codec

	// Microphone delivers interleaved samples, nil disables capture
	Microphone    <-chan []float32
	VoiceChannels int
}

type Node struct {
	t      transport.Transport
	engine Engine
	store  *assets.Store

	w        *world.World
	router   *router.Router
	auth     *authority.Resolver
	sync     *replication.Sync
	sender   *transfer.Sender
	receiver *transfer.Receiver
	loader   *transfer.Loader
	capture  *voice.Capture
	playback *voice.Playback

	gone  map[transport.PeerID]bool
	files []transfer.File
	tick  uint64

	inputMu sync.Mutex
	inputs  []input

	snapMu sync.Mutex
	snap   Snapshot
}

func New(t transport.Transport, engine Engine, store *assets.Store, opts Options) *Node {
	if opts.VoiceChannels == 0 {
		opts.VoiceChannels = 1
	}

	n := &Node{
		t:      t,
		engine: engine,
		store:  store,
		w:      world.New(),
		router: router.New(),
		loader: transfer.NewLoader(),
		gone:   make(map[transport.PeerID]bool),
	}

	n.router.Accept = func(peer transport.PeerID) bool {
		return !n.gone[peer]
	}

	n.auth = authority.New(n.w, engine)
	n.sync = replication.New(t, n.w, n.auth, engine, opts.Replication)
	n.sender = transfer.NewSender(t, opts.Transfer)
	n.receiver = transfer.NewReceiver(store, engine, opts.Transfer)
	n.capture = voice.NewCapture(t, opts.Codec, opts.VoiceChannels, opts.Microphone)
	if opts.Codec != nil {
		n.playback = voice.NewPlayback(opts.Codec, engine)
	}

	return n
}

// Tick runs every component once, in this order:
//  1. peer connection events
//  2. router drain, reliable lane first
//  3. received props, players, assets and voice
//  4. queued engine inputs
//  5. dropped files
//  6. replication
//  7. asset transfer
//  8. voice capture
//  9. jitter smoothing
//  10. status snapshot
func (n *Node) Tick() {
	n.tick++

	n.handleEvents()

	n.router.Drain(n.t)

	n.applyProps()
	n.router.Dispatch(router.Players, func(env router.Envelope) error {
		return n.sync.ApplyPlayer(env.From, env.Msg.(*proto.PlayerPosition))
	})
	n.router.Dispatch(router.Assets, func(env router.Envelope) error {
		return n.receiver.Handle(env.From, env.Msg)
	})
	n.applyVoice()

	n.applyInputs()
	n.offerFiles()

	n.sync.Publish()

	if _, _, ok := n.w.Local(); ok {
		n.sender.Step()
	}

	_, local, _ := n.w.Local()
	n.capture.Step(local)

	if n.playback != nil {
		n.playback.Smooth()
	}

	n.takeSnapshot()
}

func (n *Node) handleEvents() {
	for _, ev := range n.t.Events() {
		switch ev.Kind {
		case transport.PeerConnected:
			log.Print(ev.Peer, ": connected")

			delete(n.gone, ev.Peer)
			n.sync.PeerJoined(ev.Peer)
			n.sender.OfferTo(ev.Peer)
		case transport.PeerDisconnected:
			log.Print(ev.Peer, ": disconnected")

			n.gone[ev.Peer] = true
			for _, player := range n.sync.PeerLeft(ev.Peer) {
				if n.playback != nil {
					n.playback.Forget(player)
				}
			}
			n.receiver.PeerLeft(ev.Peer)
			n.sender.PeerLeft(ev.Peer)
			n.router.Forget(ev.Peer)
		}
	}
}

func (n *Node) applyProps() {
	n.router.Dispatch(router.Props, func(env router.Envelope) error {
		switch m := env.Msg.(type) {
		case *proto.SpawnCube:
			n.sync.ApplySpawn(m)
		case *proto.UpdateProp:
			n.auth.Apply(m)
		case *proto.DeleteProp:
			if res := n.auth.Delete(m); res == authority.Stale {
				log.Print(env.From, ": ignoring stale delete of ", m.PropUUID)
			}
		}
		return nil
	})
}

func (n *Node) applyVoice() {
	if n.playback == nil {
		n.router.Take(router.Voice)
		return
	}

	n.router.Dispatch(router.Voice, func(env router.Envelope) error {
		return n.playback.Receive(env.Msg.(*proto.VoiceChat))
	})
}

// offerFiles hands loaded files to the sender
// Files wait until there is a local player to send them as
func (n *Node) offerFiles() {
	n.files = append(n.files, n.loader.Ready()...)

	_, local, ok := n.w.Local()
	if !ok {
		return
	}

	for _, f := range n.files {
		h, err := n.store.Put(f.Name, f.Data)
		if err != nil {
			log.Print(f.Name, ": ", err)
			continue
		}

		n.engine.AssetLoaded(local, h)
		n.sender.Offer(local, f.Name, f.Data)
	}
	n.files = nil
}

// Run calls Tick every interval until ctx is cancelled
func (n *Node) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.Tick()
		}
	}
}

// World returns the entity arena
// It must only be used on the tick goroutine
func (n *Node) World() *world.World { return n.w }
