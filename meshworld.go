/*
Meshworld is a peer to peer multiplayer node that keeps a shared world
of players and props in sync without a central server.
*/
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"time"

	"github.com/HimbeerserverDE/meshworld/assets"
	"github.com/HimbeerserverDE/meshworld/conf"
	"github.com/HimbeerserverDE/meshworld/node"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/replication"
	"github.com/HimbeerserverDE/meshworld/transfer"
	"github.com/HimbeerserverDE/meshworld/transport"
	"github.com/HimbeerserverDE/meshworld/voice/opus"
	"github.com/HimbeerserverDE/meshworld/world"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", conf.DefaultPath, "path to the configuration file")
	flag.Parse()

	if err := conf.Load(*path); err != nil {
		if *path != conf.DefaultPath {
			log.Fatal(err)
		}
		log.Print(err, ", using defaults")
	}

	id := transport.PeerID(conf.String("id", uuid.NewString()))
	host := conf.String("host", "0.0.0.0:33100")

	var err error
	pc, err = net.ListenPacket("udp", host)
	if err != nil {
		log.Fatal(err)
	}

	log.Print("Listening on ", host, " as ", id)

	mesh = transport.Listen(pc, transport.Options{
		ID:               id,
		Passphrase:       []byte(conf.String("passphrase", "")),
		QueueLen:         conf.Int("transport:queue_len", 0),
		HandshakeTimeout: conf.Seconds("transport:handshake_timeout", 0),
		DialTimeout:      conf.Seconds("transport:dial_timeout", 0),
	})

	store, err = assets.Open(conf.String("assets:path", assets.Memory))
	if err != nil {
		log.Fatal(err)
	}

	engine := newHeadless()

	opts := node.Options{
		Replication: replication.Options{
			KeyframeInterval: conf.Int("replication:keyframe_interval", 0),
		},
		Transfer: transfer.Options{
			ChunkSize:       conf.Int("transfer:chunk_size", 0),
			AttemptsPerTick: conf.Int("transfer:attempts_per_tick", 0),
			MaxLen:          uint64(conf.Int("transfer:max_len", 0)),
		},
		VoiceChannels: conf.Int("voice:channels", 1),
	}
	if conf.Bool("voice:enabled", false) {
		opts.Codec = opus.Codec{Bitrate: conf.Int("voice:bitrate", 0)}

		// Without a source this node only plays voice
		if src := conf.String("voice:source", ""); src != "" {
			mic, err := openMicrophone(src, opts.VoiceChannels)
			if err != nil {
				log.Print("microphone: ", err)
			} else {
				opts.Microphone = mic
			}
		}
	}

	n := node.New(mesh, engine, store, opts)

	player := proto.PlayerUUID(conf.String("player:uuid", uuid.NewString()))
	n.SetLocalPlayer(player, world.At(proto.Vec3{}))
	if avatar := conf.String("player:avatar", ""); avatar != "" {
		n.DropFile(avatar)
	}

	ctx, cancel := context.WithCancel(context.Background())
	handleSignals(cancel)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(mesh.Serve)
	g.Go(func() error {
		<-ctx.Done()
		return mesh.Close()
	})

	for _, addr := range conf.Strings("peers") {
		addr := addr
		g.Go(func() error {
			if err := mesh.Dial(ctx, addr); err != nil {
				log.Print(addr, ": ", err)
			}
			return nil
		})
	}

	if conf.Bool("discovery:mdns", false) {
		service := conf.String("discovery:service", transport.DefaultService)
		g.Go(optional("mDNS advertisement", func() error { return mesh.Advertise(ctx, service) }))
		g.Go(optional("mDNS discovery", func() error { return mesh.Discover(ctx, service) }))
	}

	if addr := conf.String("status:listen", ""); addr != "" {
		g.Go(func() error { return serveStatus(ctx, addr, n) })
	}

	if conf.Bool("console", true) {
		runConsole(n, player)
	}

	interval := conf.Seconds("tick_interval", 50*time.Millisecond)
	g.Go(func() error { return engine.Run(ctx, interval) })
	g.Go(func() error { return n.Run(ctx, interval) })

	if err := g.Wait(); err != nil {
		log.Print(err)
		End(true)
	}
	End(false)
}

// optional wraps a service the node can run without
// Its failure is logged once instead of ending the process
func optional(name string, f func() error) func() error {
	return func() error {
		if err := f(); err != nil {
			log.Print(name, " unavailable: ", err)
		}
		return nil
	}
}
