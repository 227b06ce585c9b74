package replication

import (
	"errors"
	"reflect"
	"testing"

	"github.com/HimbeerserverDE/meshworld/authority"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"
	"github.com/HimbeerserverDE/meshworld/world"
)

type recorder struct {
	world.NopSink

	spawned   []proto.PlayerUUID
	despawned []proto.PlayerUUID
	props     []proto.PropUUID
}

func (r *recorder) SpawnPlayer(uuid proto.PlayerUUID, t world.Transform) {
	r.spawned = append(r.spawned, uuid)
}

func (r *recorder) DespawnPlayer(uuid proto.PlayerUUID) {
	r.despawned = append(r.despawned, uuid)
}

func (r *recorder) SpawnProp(uuid proto.PropUUID, a proto.Authority, t world.Transform) {
	r.props = append(r.props, uuid)
}

type fixture struct {
	node *transport.MemNode
	w    *world.World
	auth *authority.Resolver
	sync *Sync
	rec  *recorder
}

func newFixture(hub *transport.MemHub, id transport.PeerID, capacity int, player proto.PlayerUUID) *fixture {
	f := &fixture{
		node: hub.Join(id, capacity),
		w:    world.New(),
		rec:  &recorder{},
	}
	f.auth = authority.New(f.w, f.rec)
	f.sync = New(f.node, f.w, f.auth, f.rec, Options{KeyframeInterval: 10})

	if player != "" {
		pid, _ := f.w.AddPlayer(player, world.At(proto.Vec3{}), nil)
		f.w.SetLocal(pid)
	}

	return f
}

func decodeAll(t *testing.T, pkts []transport.Packet) []proto.Msg {
	t.Helper()

	var r []proto.Msg
	for _, pkt := range pkts {
		m, err := proto.Decode(pkt.Data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		r = append(r, m)
	}
	return r
}

func TestPublishWithoutLocalPlayer(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "")
	b := hub.Join("b", 0)

	id, _ := a.w.AddProp("cube", proto.Authority{}, world.At(proto.Vec3{}))
	a.w.MarkChanged(id)

	a.sync.Publish()
	hub.Flush()

	if n := len(b.Recv(transport.Reliable)) + len(b.Recv(transport.Unreliable)); n != 0 {
		t.Fatalf("expected nothing to be sent, got %d frames", n)
	}
}

func TestPublishPlayerAndKeyframe(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "alice")
	b := hub.Join("b", 0)

	id, _, _ := a.w.Local()
	a.w.SetTransform(id, world.At(proto.Vec3{X: 1}))

	a.sync.Publish()
	hub.Flush()

	msgs := decodeAll(t, b.Recv(transport.Unreliable))
	expected := []proto.Msg{&proto.PlayerPosition{
		PlayerUUID: "alice",
		PeerID:     "a",
		Position:   proto.Vec3{X: 1},
		Rotation:   proto.Identity,
	}}
	if !reflect.DeepEqual(expected, msgs) {
		t.Fatalf("unexpected unreliable frames\nexpected: %#v\nactual: %#v", expected, msgs)
	}

	// Unchanged ticks send nothing until the keyframe
	for i := 2; i < 10; i++ {
		a.sync.Publish()
	}
	hub.Flush()
	if n := len(b.Recv(transport.Unreliable)) + len(b.Recv(transport.Reliable)); n != 0 {
		t.Fatalf("expected nothing before the keyframe, got %d frames", n)
	}

	a.sync.Publish()
	hub.Flush()
	if msgs := decodeAll(t, b.Recv(transport.Reliable)); !reflect.DeepEqual(expected, msgs) {
		t.Fatalf("unexpected keyframe\nexpected: %#v\nactual: %#v", expected, msgs)
	}

	// Nothing changed since the keyframe
	for i := 0; i < 10; i++ {
		a.sync.Publish()
	}
	hub.Flush()
	if n := len(b.Recv(transport.Reliable)); n != 0 {
		t.Fatalf("expected no second keyframe, got %d", n)
	}
}

func TestPublishOnlyOwnedProps(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "alice")
	b := hub.Join("b", 0)

	mine, _ := a.w.AddProp("mine", proto.Authority{Owner: "alice", Counter: 2}, world.At(proto.Vec3{}))
	theirs, _ := a.w.AddProp("theirs", proto.Authority{Owner: "bob", Counter: 2}, world.At(proto.Vec3{}))
	a.w.SetTransform(mine, world.At(proto.Vec3{Y: 1}))
	a.w.SetTransform(theirs, world.At(proto.Vec3{Y: 2}))

	a.sync.Publish()
	hub.Flush()

	msgs := decodeAll(t, b.Recv(transport.Reliable))
	if len(msgs) != 1 {
		t.Fatalf("expected one update, got %#v", msgs)
	}
	up := msgs[0].(*proto.UpdateProp)
	if up.PropUUID != "mine" || up.Position.Y != 1 || up.Authority.Counter != 2 {
		t.Fatalf("unexpected update %#v", up)
	}
	if a.w.Changed(mine) || a.w.Changed(theirs) {
		t.Fatal("change flags not cleared")
	}
}

func TestPublishKeepsPropDirtyWhenFull(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 1, "alice")
	b := hub.Join("b", 0)

	x, _ := a.w.AddProp("x", proto.Authority{Owner: "alice"}, world.At(proto.Vec3{}))
	y, _ := a.w.AddProp("y", proto.Authority{Owner: "alice"}, world.At(proto.Vec3{}))
	a.w.MarkChanged(x)
	a.w.MarkChanged(y)

	a.sync.Publish()
	if a.w.Changed(x) {
		t.Fatal("x was sent and should be clean")
	}
	if !a.w.Changed(y) {
		t.Fatal("y didn't fit and should stay dirty")
	}

	a.w.SetTransform(y, world.At(proto.Vec3{Z: 5}))
	hub.Flush()
	a.sync.Publish()
	hub.Flush()

	msgs := decodeAll(t, b.Recv(transport.Reliable))
	if len(msgs) != 2 {
		t.Fatalf("expected two updates, got %d", len(msgs))
	}
	if up := msgs[1].(*proto.UpdateProp); up.PropUUID != "y" || up.Position.Z != 5 {
		t.Fatalf("expected the fresh state of y, got %#v", up)
	}
}

func TestApplyPlayerAndPeerLeft(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "alice")

	pos := &proto.PlayerPosition{PlayerUUID: "bob", PeerID: "b", Rotation: proto.Identity}
	if err := a.sync.ApplyPlayer("b", pos); err != nil {
		t.Fatal(err)
	}

	moved := *pos
	moved.Position.X = 3
	if err := a.sync.ApplyPlayer("b", &moved); err != nil {
		t.Fatal(err)
	}

	id, ok := a.w.Player("bob")
	if !ok {
		t.Fatal("bob was not spawned")
	}
	if tr, _ := a.w.Transform(id); tr.Position.X != 3 {
		t.Fatalf("bob didn't move: %#v", tr)
	}
	if ext, _ := a.w.External(id); ext != (world.ExternalPeer{UUID: "bob", Peer: "b"}) {
		t.Fatalf("unexpected tag %#v", ext)
	}

	if err := a.sync.ApplyPlayer("c", &moved); !errors.Is(err, ErrPeerMismatch) {
		t.Fatalf("expected ErrPeerMismatch, got %v", err)
	}

	// Our own avatar is never spawned as a remote player
	a.sync.ApplyPlayer("b", &proto.PlayerPosition{PlayerUUID: "alice", PeerID: "b"})

	gone := a.sync.PeerLeft("b")
	if !reflect.DeepEqual([]proto.PlayerUUID{"bob"}, gone) {
		t.Fatalf("unexpected departures %v", gone)
	}
	if _, ok := a.w.Player("bob"); ok {
		t.Fatal("bob survived the disconnect")
	}
	if !reflect.DeepEqual([]proto.PlayerUUID{"bob"}, a.rec.spawned) || !reflect.DeepEqual([]proto.PlayerUUID{"bob"}, a.rec.despawned) {
		t.Fatalf("unexpected sink calls %v %v", a.rec.spawned, a.rec.despawned)
	}
}

func TestSpawnLocalReachesPeers(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "alice")
	b := newFixture(hub, "b", 0, "bob")

	prop, err := a.sync.SpawnLocal(proto.Vec3{X: 4})
	if err != nil {
		t.Fatal(err)
	}

	a.sync.Publish()
	hub.Flush()

	for _, m := range decodeAll(t, b.node.Recv(transport.Reliable)) {
		if sc, ok := m.(*proto.SpawnCube); ok {
			b.sync.ApplySpawn(sc)
		}
	}

	id, ok := b.w.Prop(prop)
	if !ok {
		t.Fatal("prop didn't reach b")
	}
	if auth, _ := b.w.Authority(id); auth != (proto.Authority{Owner: "alice"}) {
		t.Fatalf("unexpected authority %#v", auth)
	}

	if err := b.sync.DeleteLocal(prop); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := a.sync.DeleteLocal(prop); err != nil {
		t.Fatal(err)
	}
	if a.sync.Pending("b") != 1 {
		t.Fatalf("expected a queued delete, got %d", a.sync.Pending("b"))
	}
}

func TestSpawnLocalWithoutPlayer(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "")

	if _, err := a.sync.SpawnLocal(proto.Vec3{}); !errors.Is(err, authority.ErrNoLocalPlayer) {
		t.Fatalf("expected ErrNoLocalPlayer, got %v", err)
	}
}

func TestStructuralOutboxRetries(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 1, "alice")
	b := hub.Join("b", 0)

	first, _ := a.sync.SpawnLocal(proto.Vec3{})
	second, _ := a.sync.SpawnLocal(proto.Vec3{})

	a.sync.Publish()
	if a.sync.Pending("b") != 1 {
		t.Fatalf("expected one frame to wait, got %d", a.sync.Pending("b"))
	}

	hub.Flush()
	a.sync.Publish()
	hub.Flush()

	var got []proto.PropUUID
	for _, m := range decodeAll(t, b.Recv(transport.Reliable)) {
		got = append(got, m.(*proto.SpawnCube).PropUUID)
	}
	if !reflect.DeepEqual([]proto.PropUUID{first, second}, got) {
		t.Fatalf("spawns out of order\nexpected: %v\nactual: %v", []proto.PropUUID{first, second}, got)
	}
}

func TestPeerJoinedSnapshot(t *testing.T) {
	hub := transport.NewMemHub()
	a := newFixture(hub, "a", 0, "alice")

	a.w.AddProp("mine", proto.Authority{Owner: "alice", Counter: 1}, world.At(proto.Vec3{X: 1}))
	a.w.AddProp("theirs", proto.Authority{Owner: "carol", Counter: 1}, world.At(proto.Vec3{}))

	b := hub.Join("b", 0)
	a.sync.PeerJoined("b")
	a.sync.Publish()
	hub.Flush()

	var kinds []proto.Kind
	for _, m := range decodeAll(t, b.Recv(transport.Reliable)) {
		kinds = append(kinds, m.Kind())
	}

	expected := []proto.Kind{proto.KindSpawnCube, proto.KindUpdateProp, proto.KindPlayerPosition}
	if !reflect.DeepEqual(expected, kinds) {
		t.Fatalf("unexpected snapshot\nexpected: %v\nactual: %v", expected, kinds)
	}
}
