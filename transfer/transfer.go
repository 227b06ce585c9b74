/*
Package transfer moves large payloads such as avatar models
between peers in bounded chunks.

A transfer is an AssetLen announcing the total length, the payload
in AssetPart chunks and a terminating AssetDone, all on the reliable
lane. The sender never blocks: if a peer's channel is full the same
frame is retried on the next tick. The receiver keeps one session per
source peer and hands the reassembled bytes to the asset store.
*/
package transfer

import (
	"errors"

	"github.com/HimbeerserverDE/meshworld/assets"
	"github.com/HimbeerserverDE/meshworld/proto"
)

const (
	DefaultChunkSize       = 10000
	DefaultAttemptsPerTick = 10
	DefaultMaxLen          = 64 << 20
)

var (
	ErrNoSession      = errors.New("no transfer in progress")
	ErrTooLarge       = errors.New("announced length exceeds limit")
	ErrOverflow       = errors.New("transfer exceeds announced length")
	ErrLengthMismatch = errors.New("transfer length differs from announcement")
	ErrPlayerMismatch = errors.New("chunk belongs to another player")
)

// Progress receives the state of inbound transfers
type Progress interface {
	TransferProgress(player proto.PlayerUUID, received, total uint64)
	AssetLoaded(player proto.PlayerUUID, h assets.Handle)
}

// Options configure both directions of transfer
type Options struct {
	ChunkSize       int
	AttemptsPerTick int
	MaxLen          uint64
}

func (o *Options) setDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.AttemptsPerTick <= 0 {
		o.AttemptsPerTick = DefaultAttemptsPerTick
	}
	if o.MaxLen == 0 {
		o.MaxLen = DefaultMaxLen
	}
}

// Split cuts data into chunks of at most size bytes
// The chunks share data's backing array
func Split(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > size {
		chunks = append(chunks, data[:size:size])
		data = data[size:]
	}
	if len(data) > 0 {
		chunks = append(chunks, data)
	}
	return chunks
}
