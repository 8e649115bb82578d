package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/sink"
)

func TestEnginesCommandListsBuiltins(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"engines"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, name := range []string{codec.PCMName, codec.FFmpegName} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("expected %q in output:\n%s", name, out.String())
		}
	}
}

func TestRunRejectsExtraArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"run", "unexpected"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestDumpCommandSummarizesFrameFile(t *testing.T) {
	var buf bytes.Buffer
	w := sink.NewFrameWriter(&buf)
	for _, n := range []int{120, 80, 200} {
		if err := w.WriteUnit(media.Unit{Data: make([]byte, n)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "out.frames")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"dump", "-v", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "frames=3 bytes=400 min=80 max=200") {
		t.Errorf("unexpected summary:\n%s", out.String())
	}
	if lines := strings.Count(out.String(), "\n"); lines != 4 {
		t.Errorf("expected 3 frame lines and a summary, got %d lines:\n%s", lines, out.String())
	}
}

func TestDumpCommandRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cut.frames")
	if err := os.WriteFile(path, []byte{10, 0, 1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"dump", path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a truncated frame")
	}
}
