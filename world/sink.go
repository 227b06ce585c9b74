package world

import "github.com/HimbeerserverDE/meshworld/proto"

// A Sink receives the entity lifecycle commands that the
// presentation layer has to carry out
// All methods are called on the tick goroutine
type Sink interface {
	SpawnPlayer(uuid proto.PlayerUUID, t Transform)
	MovePlayer(uuid proto.PlayerUUID, t Transform)
	DespawnPlayer(uuid proto.PlayerUUID)

	SpawnProp(uuid proto.PropUUID, a proto.Authority, t Transform)
	MoveProp(uuid proto.PropUUID, a proto.Authority, t Transform)
	DespawnProp(uuid proto.PropUUID)

	// ReleaseProp cancels a local interaction with a prop,
	// e.g. drops it from the local player's hand
	ReleaseProp(uuid proto.PropUUID)
}

// NopSink ignores all commands
// Embed it to implement only part of Sink
type NopSink struct{}

func (NopSink) SpawnPlayer(proto.PlayerUUID, Transform)               {}
func (NopSink) MovePlayer(proto.PlayerUUID, Transform)                {}
func (NopSink) DespawnPlayer(proto.PlayerUUID)                        {}
func (NopSink) SpawnProp(proto.PropUUID, proto.Authority, Transform)  {}
func (NopSink) MoveProp(proto.PropUUID, proto.Authority, Transform)   {}
func (NopSink) DespawnProp(proto.PropUUID)                            {}
func (NopSink) ReleaseProp(proto.PropUUID)                            {}
