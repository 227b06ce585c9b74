package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"os"

	"github.com/HimbeerserverDE/meshworld/voice"
)

// openMicrophone streams raw little-endian float32 samples from path,
// e.g. a FIFO fed by `parec --format=float32le --rate=48000`
// The channel is closed once the source ends
func openMicrophone(path string, channels int) (<-chan []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	ch := make(chan []float32, 16)
	go func() {
		defer f.Close()
		readSamples(f, channels, ch)
	}()

	return ch, nil
}

// readSamples sends one frame of interleaved samples at a time
// and closes ch at the end of r, dropping a partial last frame
func readSamples(r io.Reader, channels int, ch chan<- []float32) {
	defer close(ch)

	br := bufio.NewReader(r)
	for {
		frame := make([]float32, voice.FrameSize*channels)
		if err := binary.Read(br, binary.LittleEndian, frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Print("microphone: ", err)
			}
			return
		}

		ch <- frame
	}
}
