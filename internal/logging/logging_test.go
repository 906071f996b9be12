package logging

import (
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"info", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"warn", LevelInfo, true},
		{"trace", LevelInfo, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) accepted an unknown level", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", c.in, err)
		} else if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNew_NoFile(t *testing.T) {
	logger, closer := New("")
	if logger == nil {
		t.Fatalf("New returned nil logger")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("no-op closer returned %v", err)
	}
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbfriend.log")
	logger, closer := New(path)
	logger.Printf("hello")
	if err := closer.Close(); err != nil {
		t.Errorf("closing file sink: %v", err)
	}
}
