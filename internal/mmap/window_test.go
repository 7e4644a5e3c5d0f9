package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fluxorio/flowqueue/internal/errors"
)

func TestWindow_WriteThenRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg")
	pageSize := int64(4096)

	w, err := Open(path, Writer, 2*pageSize, pageSize)
	if err != nil {
		t.Fatalf("Open writer: %v", err)
	}

	payload := bytes.Repeat([]byte("a"), 100)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}

	r, err := Open(path, Reader, 2*pageSize, pageSize)
	if err != nil {
		t.Fatalf("Open reader: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	buf, avail, err := r.Get(int64(len(payload)))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if avail < int64(len(payload)) {
		t.Fatalf("avail = %d, want at least %d", avail, len(payload))
	}
	if !bytes.Equal(buf[:len(payload)], payload) {
		t.Fatalf("read back %q, want %q", buf[:len(payload)], payload)
	}
}

func TestWindow_Open_Reader_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create empty file: %v", err)
	}
	f.Close()

	_, err = Open(path, Reader, 4096, 4096)
	if errors.KindOf(err) != errors.Empty {
		t.Fatalf("expected Empty kind, got %v", err)
	}
}

func TestWindow_Open_Reader_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "nope"), Reader, 4096, 4096)
	if errors.KindOf(err) != errors.NotFound {
		t.Fatalf("expected NotFound kind, got %v", err)
	}
}

func TestWindow_Write_RemapsAcrossWindowBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg")
	pageSize := int64(4096)
	winSize := pageSize // tiny window to force a remap on a bigger write

	w, err := Open(path, Writer, winSize, pageSize)
	if err != nil {
		t.Fatalf("Open writer: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	payload := bytes.Repeat([]byte("b"), int(10*pageSize))
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Stats().Remaps < 2 {
		t.Fatalf("expected at least 2 remaps for a write spanning multiple windows, got %d", w.Stats().Remaps)
	}
	if w.LastPosition() != int64(len(payload)) {
		t.Fatalf("LastPosition() = %d, want %d", w.LastPosition(), len(payload))
	}
}

func TestWindow_Seek_ResumesAtPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg")
	pageSize := int64(4096)

	w, err := Open(path, Writer, 4*pageSize, pageSize)
	if err != nil {
		t.Fatalf("Open writer: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := Open(path, Writer, 4*pageSize, pageSize)
	if err != nil {
		t.Fatalf("reopen writer: %v", err)
	}
	t.Cleanup(func() { _ = w2.Close() })

	if err := w2.Seek(11); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if w2.LastPosition() != 11 {
		t.Fatalf("LastPosition() after Seek = %d, want 11", w2.LastPosition())
	}

	if _, err := w2.Write([]byte("!")); err != nil {
		t.Fatalf("Write after seek: %v", err)
	}
	if w2.LastPosition() != 12 {
		t.Fatalf("LastPosition() after append = %d, want 12", w2.LastPosition())
	}
}
