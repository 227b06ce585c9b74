package transport

import (
	"errors"
	"reflect"
	"testing"
)

func TestMemHubEvents(t *testing.T) {
	hub := NewMemHub()
	a := hub.Join("a", 0)
	b := hub.Join("b", 0)

	expected := []PeerEvent{{Peer: "b", Kind: PeerConnected}}
	if got := a.Events(); !reflect.DeepEqual(expected, got) {
		t.Fatalf("unexpected events for a\nexpected: %#v\nactual: %#v", expected, got)
	}
	expected = []PeerEvent{{Peer: "a", Kind: PeerConnected}}
	if got := b.Events(); !reflect.DeepEqual(expected, got) {
		t.Fatalf("unexpected events for b\nexpected: %#v\nactual: %#v", expected, got)
	}

	hub.Leave("b")
	expected = []PeerEvent{{Peer: "b", Kind: PeerDisconnected}}
	if got := a.Events(); !reflect.DeepEqual(expected, got) {
		t.Fatalf("unexpected events after leave\nexpected: %#v\nactual: %#v", expected, got)
	}
	if peers := a.Peers(); len(peers) != 0 {
		t.Fatalf("expected no peers, got %v", peers)
	}
	if err := a.Send("b", Reliable, []byte{1}); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestMemHubReliableOrderAndBackpressure(t *testing.T) {
	hub := NewMemHub()
	a := hub.Join("a", 2)
	b := hub.Join("b", 0)

	if err := a.Send("b", Reliable, []byte{1}); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := a.Send("b", Reliable, []byte{2}); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	if err := a.Send("b", Reliable, []byte{3}); !errors.Is(err, ErrChannelFull) {
		t.Fatalf("expected ErrChannelFull, got %v", err)
	}

	if got := b.Recv(Reliable); len(got) != 0 {
		t.Fatalf("expected nothing before flush, got %v", got)
	}

	hub.Flush()
	if err := a.Send("b", Reliable, []byte{3}); err != nil {
		t.Fatalf("send after flush: %v", err)
	}
	hub.Flush()

	var data []byte
	for _, pkt := range b.Recv(Reliable) {
		if pkt.From != "a" || pkt.Lane != Reliable {
			t.Fatalf("unexpected packet %#v", pkt)
		}
		data = append(data, pkt.Data...)
	}
	if !reflect.DeepEqual([]byte{1, 2, 3}, data) {
		t.Fatalf("expected frames in order, got %v", data)
	}
}

func TestMemHubUnreliable(t *testing.T) {
	hub := NewMemHub()
	a := hub.Join("a", 1)
	b := hub.Join("b", 0)

	for i := 0; i < 5; i++ {
		if err := a.Send("b", Unreliable, []byte{byte(i)}); err != nil {
			t.Fatalf("unreliable send %d: %v", i, err)
		}
	}
	if got := b.Recv(Unreliable); len(got) != 5 {
		t.Fatalf("expected 5 unreliable packets, got %d", len(got))
	}

	hub.DropUnreliable = true
	a.Send("b", Unreliable, []byte{9})
	if got := b.Recv(Unreliable); len(got) != 0 {
		t.Fatalf("expected unreliable packet to be dropped, got %v", got)
	}
}

func TestBroadcastReportsFullPeers(t *testing.T) {
	hub := NewMemHub()
	a := hub.Join("a", 1)
	hub.Join("b", 0)
	hub.Join("c", 0)

	if errs := Broadcast(a, Reliable, []byte{1}); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}

	hub.Flush()
	a.Send("c", Reliable, []byte{2})

	errs := Broadcast(a, Reliable, []byte{3})
	if len(errs) != 1 || !errors.Is(errs["c"], ErrChannelFull) {
		t.Fatalf("expected only c to be full, got %v", errs)
	}
}

func TestReadBytes16(t *testing.T) {
	frame := appendBytes16([]byte{}, []byte("peer"))
	frame = appendBytes16(frame, nil)

	id, rest, ok := readBytes16(frame)
	if !ok || string(id) != "peer" {
		t.Fatalf("expected peer, got %q ok=%v", id, ok)
	}
	empty, rest, ok := readBytes16(rest)
	if !ok || len(empty) != 0 || len(rest) != 0 {
		t.Fatalf("expected empty trailing field, got %q rest=%v ok=%v", empty, rest, ok)
	}

	if _, _, ok := readBytes16([]byte{0, 5, 'a'}); ok {
		t.Fatal("expected short field to fail")
	}
	if _, _, ok := readBytes16([]byte{0}); ok {
		t.Fatal("expected short length to fail")
	}
}
