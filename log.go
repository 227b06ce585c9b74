package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

const (
	logDir    = "log"
	logLatest = logDir + "/latest.txt"
	logLast   = logDir + "/last.txt"

	// logLines is the number of lines kept for the curses console
	logLines = 256
)

// A Logger writes to stdout and log/latest.txt
// The file of the previous run is kept as log/last.txt
// Once the curses console is up, lines are drawn above its input line
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	curses bool
	lines  []string
}

func newLogger() *Logger {
	os.Mkdir(logDir, 0777)
	os.Rename(logLatest, logLast)

	f, err := os.OpenFile(logLatest, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	return &Logger{file: f}
}

func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Write(p)
	}

	if !l.curses {
		fmt.Print(string(p))
		return len(p), nil
	}

	l.append(string(p))
	draw(l.lines)

	return len(p), nil
}

func (l *Logger) append(s string) {
	l.lines = append(l.lines, strings.Split(strings.TrimRight(s, "\n"), "\n")...)
	if len(l.lines) > logLines {
		l.lines = l.lines[len(l.lines)-logLines:]
	}
}

func (l *Logger) startCurses() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.curses = true
	draw(l.lines)
}

func (l *Logger) redraw() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.curses {
		draw(l.lines)
	}
}

// Close stops writing to the log file and ends the curses console
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.curses {
		endCurses()
		l.curses = false
	}

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	return err
}

func init() {
	log.SetOutput(newLogger())
}
