package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/HimbeerserverDE/meshworld/node"
	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/world"
)

var errUsage = errors.New("wrong number of arguments")

// consoleNode is the part of a node.Node the console drives
type consoleNode interface {
	snapshotter

	LocalPlayerMoved(t world.Transform)
	PropMoved(prop proto.PropUUID, t world.Transform)
	SpawnCube(t world.Transform)
	Grab(prop proto.PropUUID)
	Release(prop proto.PropUUID)
	DeleteProp(prop proto.PropUUID)
	DropFile(path string)
}

type consoleCommand struct {
	help string
	run  func(n consoleNode, args []string) error
}

var consoleCommands map[string]consoleCommand

func init() {
	consoleCommands = map[string]consoleCommand{
		"move": {"move <x> <y> <z>: move the local player", func(n consoleNode, args []string) error {
			pos, err := parseVec3(args)
			if err != nil {
				return err
			}
			n.LocalPlayerMoved(world.At(pos))
			return nil
		}},
		"spawn": {"spawn [<x> <y> <z>]: spawn a cube", func(n consoleNode, args []string) error {
			var pos proto.Vec3
			if len(args) > 0 {
				var err error
				if pos, err = parseVec3(args); err != nil {
					return err
				}
			}
			n.SpawnCube(world.At(pos))
			return nil
		}},
		"grab":    {"grab <prop>: take authority over a prop", propCommand(consoleNode.Grab)},
		"release": {"release <prop>: let go of a prop", propCommand(consoleNode.Release)},
		"delete":  {"delete <prop>: delete an owned prop", propCommand(consoleNode.DeleteProp)},
		"push": {"push <prop> <x> <y> <z>: move an owned prop", func(n consoleNode, args []string) error {
			if len(args) != 4 {
				return errUsage
			}
			pos, err := parseVec3(args[1:])
			if err != nil {
				return err
			}
			n.PropMoved(proto.PropUUID(args[0]), world.At(pos))
			return nil
		}},
		"avatar": {"avatar <path>: share a file as the local avatar", func(n consoleNode, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			n.DropFile(args[0])
			return nil
		}},
		"props": {"props: list props", func(n consoleNode, args []string) error {
			for _, p := range n.Snapshot().Props {
				log.Printf("%s at %v owner %s counter %d held %v", p.UUID, p.Transform.Position, p.Authority.Owner, p.Authority.Counter, p.Held)
			}
			return nil
		}},
		"players": {"players: list players", func(n consoleNode, args []string) error {
			for _, p := range n.Snapshot().Players {
				log.Printf("%s at %v peer %q local %v", p.UUID, p.Transform.Position, p.Peer, p.Local)
			}
			return nil
		}},
	}
}

func propCommand(f func(consoleNode, proto.PropUUID)) func(consoleNode, []string) error {
	return func(n consoleNode, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		f(n, proto.PropUUID(args[0]))
		return nil
	}
}

func parseVec3(args []string) (proto.Vec3, error) {
	if len(args) != 3 {
		return proto.Vec3{}, errUsage
	}

	var v [3]float32
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return proto.Vec3{}, err
		}
		v[i] = float32(f)
	}

	return proto.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// execConsole runs a single console line
func execConsole(n consoleNode, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	if fields[0] == "help" {
		for _, cmd := range consoleCommands {
			log.Print(cmd.help)
		}
		return nil
	}

	cmd, ok := consoleCommands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", fields[0])
	}

	if err := cmd.run(n, fields[1:]); err != nil {
		return fmt.Errorf("%s: %w, usage: %s", fields[0], err, cmd.help)
	}
	return nil
}

func readConsole(n consoleNode, r io.Reader) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		if err := execConsole(n, s.Text()); err != nil {
			log.Print(err)
		}
	}
}

// runConsole reads commands from a curses input line,
// or line by line if stdin isn't a terminal
func runConsole(n *node.Node, player proto.PlayerUUID) {
	if isTerminal(os.Stdin) {
		initCurses(log.Writer().(*Logger), n)
	} else {
		go readConsole(n, os.Stdin)
	}

	log.Print("Local player is ", player, ", type help for a list of commands")
}
