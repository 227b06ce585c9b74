package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/HimbeerserverDE/meshworld/node"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/world"
)

type recorder struct {
	fixedSnapshot
	calls []string
	pos   []proto.Vec3
}

func (r *recorder) record(call string, t world.Transform) {
	r.calls = append(r.calls, call)
	r.pos = append(r.pos, t.Position)
}

func (r *recorder) LocalPlayerMoved(t world.Transform) {
	r.record("move", t)
}

func (r *recorder) PropMoved(prop proto.PropUUID, t world.Transform) {
	r.record("push "+string(prop), t)
}

func (r *recorder) SpawnCube(t world.Transform) {
	r.record("spawn", t)
}

func (r *recorder) Grab(prop proto.PropUUID) {
	r.calls = append(r.calls, "grab "+string(prop))
}

func (r *recorder) Release(prop proto.PropUUID) {
	r.calls = append(r.calls, "release "+string(prop))
}

func (r *recorder) DeleteProp(prop proto.PropUUID) {
	r.calls = append(r.calls, "delete "+string(prop))
}

func (r *recorder) DropFile(path string) {
	r.calls = append(r.calls, "avatar "+path)
}

func TestConsole(t *testing.T) {
	r := &recorder{fixedSnapshot: fixedSnapshot(node.Snapshot{})}

	readConsole(r, strings.NewReader(`
move 1 2 3
spawn
spawn 0 1.5 0
grab cube
push cube 4 5 6
release cube
delete cube
avatar /tmp/alice.vrm
props
bogus
`))

	expected := []string{
		"move",
		"spawn",
		"spawn",
		"grab cube",
		"push cube",
		"release cube",
		"delete cube",
		"avatar /tmp/alice.vrm",
	}
	if !reflect.DeepEqual(expected, r.calls) {
		t.Fatalf("unexpected calls\nexpected: %#v\nactual: %#v", expected, r.calls)
	}

	pos := []proto.Vec3{{X: 1, Y: 2, Z: 3}, {}, {Y: 1.5}, {X: 4, Y: 5, Z: 6}}
	if !reflect.DeepEqual(pos, r.pos) {
		t.Fatalf("unexpected positions\nexpected: %#v\nactual: %#v", pos, r.pos)
	}
}

func TestConsoleErrors(t *testing.T) {
	tests := []struct {
		line  string
		usage bool
	}{
		{"move 1 2", true},
		{"grab", true},
		{"push cube 1 2", true},
		{"avatar", true},
		{"spawn x y z", false},
		{"teleport", false},
	}

	for _, test := range tests {
		err := execConsole(&recorder{}, test.line)
		if err == nil {
			t.Fatalf("%q: expected an error", test.line)
		}
		if errors.Is(err, errUsage) != test.usage {
			t.Fatalf("%q: unexpected error %v", test.line, err)
		}
	}

	if err := execConsole(&recorder{}, "   "); err != nil {
		t.Fatalf("blank line: %v", err)
	}
}

func TestHistory(t *testing.T) {
	h := &History{}
	h.Add([]rune("spawn"))
	h.Add([]rune("grab cube"))
	h.Add([]rune("spawn"))

	var got []string
	var cur []rune
	for i := 0; i < 3; i++ {
		cur = h.Prev(cur)
		got = append(got, string(cur))
	}

	expected := []string{"spawn", "grab cube", "grab cube"}
	if !reflect.DeepEqual(expected, got) {
		t.Fatalf("unexpected history\nexpected: %#v\nactual: %#v", expected, got)
	}

	if next := string(h.Next()); next != "spawn" {
		t.Fatalf("expected spawn, got %q", next)
	}
	if next := string(h.Next()); next != "" {
		t.Fatalf("expected an empty line, got %q", next)
	}
}

func TestKeys(t *testing.T) {
	h := &History{}
	consoleInput = nil

	var line string
	var done bool
	for _, ch := range "spawx\bn\n" {
		line, done = key(h, ch)
	}
	if !done || line != "spawn" {
		t.Fatalf("expected spawn, got %q done=%v", line, done)
	}

	key(h, 4)
	if string(consoleInput) != "spawn" {
		t.Fatalf("up didn't recall the last line, got %q", string(consoleInput))
	}
	key(h, 3)
	if len(consoleInput) != 0 {
		t.Fatalf("down didn't clear the line, got %q", string(consoleInput))
	}
}

func TestLoggerKeepsLastLines(t *testing.T) {
	l := &Logger{}
	for i := 0; i < logLines+10; i++ {
		l.append("a\nb\n")
	}

	if len(l.lines) != logLines {
		t.Fatalf("expected %d lines, got %d", logLines, len(l.lines))
	}
	if l.lines[len(l.lines)-1] != "b" {
		t.Fatalf("unexpected last line %q", l.lines[len(l.lines)-1])
	}
}
