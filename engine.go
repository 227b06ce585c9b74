package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/HimbeerserverDE/meshworld/assets"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/voice"
	"github.com/HimbeerserverDE/meshworld/world"
)

// headless is an engine without a renderer or audio device
// It logs lifecycle commands and plays voice into silent queues
type headless struct {
	world.NopSink

	mu    sync.Mutex
	sinks map[proto.PlayerUUID]*voice.QueueSink
}

func newHeadless() *headless {
	return &headless{sinks: make(map[proto.PlayerUUID]*voice.QueueSink)}
}

func (h *headless) SpawnPlayer(uuid proto.PlayerUUID, t world.Transform) {
	log.Print("player ", uuid, " spawned at ", t.Position)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sinks[uuid] = voice.NewQueueSink()
}

func (h *headless) DespawnPlayer(uuid proto.PlayerUUID) {
	log.Print("player ", uuid, " despawned")

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sinks, uuid)
}

func (h *headless) SpawnProp(uuid proto.PropUUID, a proto.Authority, t world.Transform) {
	log.Print("prop ", uuid, " spawned at ", t.Position, " owned by ", a.Owner)
}

func (h *headless) DespawnProp(uuid proto.PropUUID) {
	log.Print("prop ", uuid, " despawned")
}

func (h *headless) ReleaseProp(uuid proto.PropUUID) {
	log.Print("lost authority over ", uuid)
}

func (h *headless) VoiceSink(uuid proto.PlayerUUID) voice.Sink {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sinks[uuid]; ok {
		return s
	}
	return nil
}

func (h *headless) TransferProgress(player proto.PlayerUUID, received, total uint64) {
	if received == total {
		log.Printf("avatar of %s: %d bytes received", player, total)
	}
}

func (h *headless) AssetLoaded(player proto.PlayerUUID, a assets.Handle) {
	log.Print("avatar of ", player, " is ", a.Name, " (", a.Digest, ")")
}

// advance plays d of every voice queue
func (h *headless) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.sinks {
		s.Advance(d)
	}
}

// Run advances playback by interval until ctx is cancelled
func (h *headless) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			h.advance(now.Sub(last))
			last = now
		}
	}
}
