// Package logging builds the process-wide logger. Output goes to stderr,
// optionally mirrored to a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level gates how chatty the run is. It is coarse on purpose: Debug adds
// per-feature classification events on top of the per-table progress that
// Info always prints.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
)

// ParseLevel maps a --log-level string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns the logger and a closer for its file sink, if any. With an
// empty file path everything goes to stderr and the closer is a no-op.
// The rotated file keeps at most 3 backups of 10 MB each.
func New(file string) (*log.Logger, io.Closer) {
	if file == "" {
		return log.New(os.Stderr, "[dbfriend] ", log.LstdFlags), nopCloser{}
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	w := io.MultiWriter(os.Stderr, rotator)
	return log.New(w, "[dbfriend] ", log.LstdFlags), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
