/*
Package proto defines the messages exchanged between meshworld peers
and their binary encoding.

Every frame starts with the message Kind, followed by the fields in
declaration order. Integers and floats are big-endian, strings are
prefixed with a uint16 length and byte blobs with a uint32 length.
Messages carry no sequence number, ordering only comes from the lane
they are sent on.
*/
package proto

import "fmt"

// A Kind identifies the type of a message on the wire
type Kind uint8

const (
	KindSpawnCube Kind = iota + 1
	KindUpdateProp
	KindDeleteProp
	KindPlayerPosition
	KindVoiceChat
	KindAssetLen
	KindAssetPart
	KindAssetDone
)

var kindNames = map[Kind]string{
	KindSpawnCube:      "SpawnCube",
	KindUpdateProp:     "UpdateProp",
	KindDeleteProp:     "DeleteProp",
	KindPlayerPosition: "PlayerPosition",
	KindVoiceChat:      "VoiceChat",
	KindAssetLen:       "AssetLen",
	KindAssetPart:      "AssetPart",
	KindAssetDone:      "AssetDone",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Unreliable reports whether messages of this kind are sent
// on the unreliable lane
func (k Kind) Unreliable() bool {
	return k == KindPlayerPosition || k == KindVoiceChat
}

// PlayerUUID identifies a player across peers and connections
type PlayerUUID string

// PropUUID identifies a shared prop across peers
type PropUUID string

type Vec3 struct {
	X, Y, Z float32
}

type Quat struct {
	X, Y, Z, W float32
}

// Identity is the rotation that doesn't rotate
var Identity = Quat{W: 1}

// Authority decides whose updates to a prop are accepted
// Counter only grows and only increases when ownership changes hands
type Authority struct {
	Owner   PlayerUUID
	Counter uint64
}

// A DecodeError is returned for frames that can't be decoded
// Frames come from untrusted peers, so this is never fatal
type DecodeError struct {
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Kind == 0 {
		return "decode: " + e.Reason
	}
	return "decode " + e.Kind.String() + ": " + e.Reason
}
