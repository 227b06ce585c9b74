package proto

import "bytes"

// A Msg is one of the message types in this package
type Msg interface {
	Kind() Kind
	encode(w *bytes.Buffer)
	decode(r *reader)
}

type SpawnCube struct {
	Authority Authority
	PropUUID  PropUUID
	Position  Vec3
}

type UpdateProp struct {
	Authority       Authority
	PropUUID        PropUUID
	Position        Vec3
	Rotation        Quat
	LinearVelocity  Vec3
	AngularVelocity Vec3
}

type DeleteProp struct {
	Authority Authority
	PropUUID  PropUUID
}

// PlayerPosition is the state of the sender's own avatar
// PeerID is the sender's transport identity
type PlayerPosition struct {
	PlayerUUID     PlayerUUID
	PeerID         string
	Position       Vec3
	Rotation       Quat
	LinearVelocity Vec3
}

// VoiceChat carries one compressed audio frame
type VoiceChat struct {
	Data     []byte
	UUID     PlayerUUID
	Channels uint16
}

// AssetLen announces a transfer of Len bytes
type AssetLen struct {
	UUID PlayerUUID
	Len  uint64
}

// AssetPart is one chunk of an announced transfer
type AssetPart struct {
	UUID PlayerUUID
	Name string
	Data []byte
}

// AssetDone terminates the current transfer of the sender
type AssetDone struct{}

func (*SpawnCube) Kind() Kind      { return KindSpawnCube }
func (*UpdateProp) Kind() Kind     { return KindUpdateProp }
func (*DeleteProp) Kind() Kind     { return KindDeleteProp }
func (*PlayerPosition) Kind() Kind { return KindPlayerPosition }
func (*VoiceChat) Kind() Kind      { return KindVoiceChat }
func (*AssetLen) Kind() Kind       { return KindAssetLen }
func (*AssetPart) Kind() Kind      { return KindAssetPart }
func (*AssetDone) Kind() Kind      { return KindAssetDone }

func (m *SpawnCube) encode(w *bytes.Buffer) {
	writeAuthority(w, m.Authority)
	writeString16(w, string(m.PropUUID))
	writeVec3(w, m.Position)
}

func (m *SpawnCube) decode(r *reader) {
	m.Authority = r.authority()
	m.PropUUID = PropUUID(r.string16("prop uuid"))
	m.Position = r.vec3("position")
}

func (m *UpdateProp) encode(w *bytes.Buffer) {
	writeAuthority(w, m.Authority)
	writeString16(w, string(m.PropUUID))
	writeVec3(w, m.Position)
	writeQuat(w, m.Rotation)
	writeVec3(w, m.LinearVelocity)
	writeVec3(w, m.AngularVelocity)
}

func (m *UpdateProp) decode(r *reader) {
	m.Authority = r.authority()
	m.PropUUID = PropUUID(r.string16("prop uuid"))
	m.Position = r.vec3("position")
	m.Rotation = r.quat("rotation")
	m.LinearVelocity = r.vec3("linear velocity")
	m.AngularVelocity = r.vec3("angular velocity")
}

func (m *DeleteProp) encode(w *bytes.Buffer) {
	writeAuthority(w, m.Authority)
	writeString16(w, string(m.PropUUID))
}

func (m *DeleteProp) decode(r *reader) {
	m.Authority = r.authority()
	m.PropUUID = PropUUID(r.string16("prop uuid"))
}

func (m *PlayerPosition) encode(w *bytes.Buffer) {
	writeString16(w, string(m.PlayerUUID))
	writeString16(w, m.PeerID)
	writeVec3(w, m.Position)
	writeQuat(w, m.Rotation)
	writeVec3(w, m.LinearVelocity)
}

func (m *PlayerPosition) decode(r *reader) {
	m.PlayerUUID = PlayerUUID(r.string16("player uuid"))
	m.PeerID = r.string16("peer id")
	m.Position = r.vec3("position")
	m.Rotation = r.quat("rotation")
	m.LinearVelocity = r.vec3("linear velocity")
}

func (m *VoiceChat) encode(w *bytes.Buffer) {
	writeBytes32(w, m.Data)
	writeString16(w, string(m.UUID))
	writeUint16(w, m.Channels)
}

func (m *VoiceChat) decode(r *reader) {
	m.Data = r.bytes32("voice data")
	m.UUID = PlayerUUID(r.string16("player uuid"))
	m.Channels = r.uint16("channels")
}

func (m *AssetLen) encode(w *bytes.Buffer) {
	writeString16(w, string(m.UUID))
	writeUint64(w, m.Len)
}

func (m *AssetLen) decode(r *reader) {
	m.UUID = PlayerUUID(r.string16("player uuid"))
	m.Len = r.uint64("length")
}

func (m *AssetPart) encode(w *bytes.Buffer) {
	writeString16(w, string(m.UUID))
	writeString16(w, m.Name)
	writeBytes32(w, m.Data)
}

func (m *AssetPart) decode(r *reader) {
	m.UUID = PlayerUUID(r.string16("player uuid"))
	m.Name = r.string16("name")
	m.Data = r.bytes32("chunk")
}

func (*AssetDone) encode(*bytes.Buffer) {}
func (*AssetDone) decode(*reader)       {}

func newMsg(k Kind) Msg {
	switch k {
	case KindSpawnCube:
		return &SpawnCube{}
	case KindUpdateProp:
		return &UpdateProp{}
	case KindDeleteProp:
		return &DeleteProp{}
	case KindPlayerPosition:
		return &PlayerPosition{}
	case KindVoiceChat:
		return &VoiceChat{}
	case KindAssetLen:
		return &AssetLen{}
	case KindAssetPart:
		return &AssetPart{}
	case KindAssetDone:
		return &AssetDone{}
	}
	return nil
}

// Encode serializes m including its Kind
func Encode(m Msg) []byte {
	w := bytes.NewBuffer([]byte{uint8(m.Kind())})
	m.encode(w)
	return w.Bytes()
}

// Decode parses a frame produced by Encode
// Malformed input yields a *DecodeError, never a panic
func Decode(data []byte) (Msg, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty frame"}
	}

	k := Kind(data[0])
	m := newMsg(k)
	if m == nil {
		return nil, &DecodeError{Kind: k, Reason: "unknown message kind"}
	}

	r := &reader{kind: k, data: data[1:]}
	m.decode(r)
	r.end()
	if r.err != nil {
		return nil, r.err
	}

	return m, nil
}
