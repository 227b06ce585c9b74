package transfer

import (
	"log"
	"os"
	"path/filepath"

	"github.com/HimbeerserverDE/meshworld/proto"
)

// MaxNameLen is the longest file name offered to peers, in bytes
const MaxNameLen = 255

// A File is a dropped file read into memory
type File struct {
	Name string
	Data []byte
}

// A Loader reads dropped files in the background
// and hands them to the tick loop
type Loader struct {
	ch chan File
}

func NewLoader() *Loader {
	return &Loader{ch: make(chan File, 100)}
}

// Load reads the file at path without blocking the caller
func (l *Loader) Load(path string) {
	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Print(err)
			return
		}

		log.Print("loaded ", path, " (", len(data), " bytes)")
		l.ch <- File{Name: fileName(path), Data: data}
	}()
}

// fileName returns the name a file at path is offered as
func fileName(path string) string {
	return proto.Truncate(filepath.Base(path), MaxNameLen)
}

// Ready returns the files loaded since the last call
func (l *Loader) Ready() []File {
	var r []File
	for {
		select {
		case f := <-l.ch:
			r = append(r, f)
		default:
			return r
		}
	}
}
