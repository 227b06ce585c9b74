package proto

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// MaxBlobLen is the largest byte blob a single message may carry
const MaxBlobLen = 1 << 24

func writeUint16(w *bytes.Buffer, v uint16) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	w.Write(b)
}

func writeUint32(w *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	w.Write(b)
}

func writeUint64(w *bytes.Buffer, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	w.Write(b)
}

func writeFloat32(w *bytes.Buffer, v float32) {
	writeUint32(w, math.Float32bits(v))
}

// Truncate makes s valid UTF-8 and cuts it to at most max bytes
// without splitting a character
func Truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= max {
		return s
	}

	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// writeString16 writes a string prefixed with its uint16 length
// Strings are truncated to what string16 accepts, ids never come close
func writeString16(w *bytes.Buffer, s string) {
	s = Truncate(s, math.MaxUint16)
	writeUint16(w, uint16(len(s)))
	w.WriteString(s)
}

func writeBytes32(w *bytes.Buffer, b []byte) {
	writeUint32(w, uint32(len(b)))
	w.Write(b)
}

func writeVec3(w *bytes.Buffer, v Vec3) {
	writeFloat32(w, v.X)
	writeFloat32(w, v.Y)
	writeFloat32(w, v.Z)
}

func writeQuat(w *bytes.Buffer, q Quat) {
	writeFloat32(w, q.X)
	writeFloat32(w, q.Y)
	writeFloat32(w, q.Z)
	writeFloat32(w, q.W)
}

func writeAuthority(w *bytes.Buffer, a Authority) {
	writeString16(w, string(a.Owner))
	writeUint64(w, a.Counter)
}

// reader reads big-endian fields and remembers the first failure
// Once failed, every further read returns zero values
type reader struct {
	kind Kind
	data []byte
	err  error
}

func (r *reader) fail(reason string) {
	if r.err == nil {
		r.err = &DecodeError{Kind: r.kind, Reason: reason}
	}
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data) < n {
		r.fail("truncated " + what)
		return nil
	}

	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) uint16(what string) uint16 {
	b := r.take(2, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32(what string) uint32 {
	b := r.take(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64(what string) uint64 {
	b := r.take(8, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) float32(what string) float32 {
	return math.Float32frombits(r.uint32(what))
}

func (r *reader) string16(what string) string {
	n := r.uint16(what + " length")
	b := r.take(int(n), what)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.fail("invalid utf-8 in " + what)
		return ""
	}
	return string(b)
}

func (r *reader) bytes32(what string) []byte {
	n := r.uint32(what + " length")
	if n > MaxBlobLen {
		r.fail(what + " too large")
		return nil
	}
	b := r.take(int(n), what)
	if len(b) == 0 {
		return nil
	}
	return append([]byte{}, b...)
}

func (r *reader) vec3(what string) Vec3 {
	return Vec3{
		X: r.float32(what),
		Y: r.float32(what),
		Z: r.float32(what),
	}
}

func (r *reader) quat(what string) Quat {
	return Quat{
		X: r.float32(what),
		Y: r.float32(what),
		Z: r.float32(what),
		W: r.float32(what),
	}
}

func (r *reader) authority() Authority {
	return Authority{
		Owner:   PlayerUUID(r.string16("authority owner")),
		Counter: r.uint64("authority counter"),
	}
}

func (r *reader) end() {
	if r.err == nil && len(r.data) > 0 {
		r.fail("trailing bytes")
	}
}
