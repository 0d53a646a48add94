package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestBufferKeepsMostRecentLines(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(b, "line %d\n", i)
	}
	got := b.Lines()
	want := []string{"line 2", "line 3", "line 4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Lines() = %v, want %v", got, want)
	}

	got[0] = "mutated"
	if b.Lines()[0] != "line 2" {
		t.Error("Lines must return a copy")
	}
}

func TestNewTeesIntoBuffer(t *testing.T) {
	buf := NewBuffer(10)
	logger, err := New(Options{Level: "info", Format: "json", Buffer: buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("summary completed", zap.String("summary_id", "abc"))

	lines := buf.Lines()
	if len(lines) != 1 {
		t.Fatalf("buffer has %d lines, want 1: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "summary completed") || !strings.Contains(lines[0], "abc") {
		t.Errorf("unexpected line %q", lines[0])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	buf := NewBuffer(10)
	logger, err := New(Options{Level: "loud", Buffer: buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("debug message")
	logger.Info("info message")
	if lines := buf.Lines(); len(lines) != 1 {
		t.Errorf("expected only the info entry, got %v", lines)
	}
}
