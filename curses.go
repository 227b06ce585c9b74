package main

import (
	"log"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/HimbeerserverDE/meshworld/conf"
	"github.com/tncardoso/gocurses"
)

// consoleMu guards consoleInput and the screen
// Lock it after Logger.mu, never before
var (
	consoleMu    sync.Mutex
	consoleInput []rune
)

// History holds the lines entered on the console, oldest first
type History struct {
	lines [][]rune
	i     int
}

// Add appends line, removing earlier copies of it
func (h *History) Add(line []rune) {
	for k := 0; k < len(h.lines); k++ {
		if string(h.lines[k]) == string(line) {
			h.lines = append(h.lines[:k], h.lines[k+1:]...)
			k--
		}
	}

	h.lines = append(h.lines, line)
	h.i = 0
}

// Prev steps back in time, current is kept at the oldest line
func (h *History) Prev(current []rune) []rune {
	h.i++
	i := len(h.lines) - h.i
	if i < 0 || i >= len(h.lines) {
		h.i--
		return current
	}

	return h.lines[i]
}

// Next steps forward in time, ending at an empty line
func (h *History) Next() []rune {
	h.i--
	if h.i < 1 {
		h.i = 0
		return []rune{}
	}

	return h.lines[len(h.lines)-h.i]
}

// isTerminal reports whether f is a character device
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func draw(msgs []string) {
	consoleMu.Lock()
	defer consoleMu.Unlock()

	prompt := conf.String("console_prompt", "> ")

	gocurses.Clear()

	row, _ := gocurses.Getmaxyx()
	if len(msgs) > row-1 {
		msgs = msgs[len(msgs)-row+1:]
	}

	i := len(msgs)
	for _, msg := range msgs {
		gocurses.Mvaddstr(row-i-1, 0, msg)
		i--
	}
	gocurses.Mvaddstr(row-1, 0, prompt+string(consoleInput))

	gocurses.Refresh()
}

// key applies a key press to the input line
// and returns a finished line, if any
func key(h *History, ch rune) (string, bool) {
	consoleMu.Lock()
	defer consoleMu.Unlock()

	switch ch {
	case 3:
		consoleInput = h.Next()
	case 4:
		consoleInput = h.Prev(consoleInput)
	case '\b', 127:
		if len(consoleInput) > 0 {
			consoleInput = consoleInput[:len(consoleInput)-1]
		}
	case '\n':
		line := string(consoleInput)
		if len(consoleInput) > 0 {
			h.Add(consoleInput)
		}
		consoleInput = []rune{}
		return line, true
	default:
		consoleInput = append(consoleInput, ch)
	}

	return "", false
}

func initCurses(l *Logger, n consoleNode) {
	gocurses.Initscr()
	gocurses.Cbreak()
	gocurses.Noecho()
	gocurses.Stdscr.Keypad(true)

	l.startCurses()

	go func() {
		h := &History{}

		for {
			var ch rune
			ch1 := gocurses.Stdscr.Getch() % 255
			if ch1 > 0x7F {
				ch2 := gocurses.Stdscr.Getch()
				ch, _ = utf8.DecodeRune([]byte{byte(ch1), byte(ch2)})
			} else {
				ch = rune(ch1)
			}

			if line, ok := key(h, ch); ok {
				if err := execConsole(n, line); err != nil {
					log.Print(err)
				}
			}

			l.redraw()
		}
	}()
}

func endCurses() {
	gocurses.End()
}
