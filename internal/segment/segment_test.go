package segment

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNameFor_ParseOffset_RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 255, 1 << 20, 1<<63 - 1}
	for _, off := range cases {
		name := NameFor(off)
		if len(name) != NameLen {
			t.Fatalf("NameFor(%d) = %q, want length %d", off, name, NameLen)
		}
		got, ok := ParseOffset(name)
		if !ok {
			t.Fatalf("ParseOffset(%q) failed to parse", name)
		}
		if got != off {
			t.Fatalf("ParseOffset(%q) = %d, want %d", name, got, off)
		}
	}
}

func TestParseOffset_RejectsGarbage(t *testing.T) {
	for _, name := range []string{"not-a-segment.sq", "00000000000000.sq", "0000000000000000.log", ""} {
		if _, ok := ParseOffset(name); ok {
			t.Fatalf("ParseOffset(%q) unexpectedly succeeded", name)
		}
	}
}

func TestDir_List_Starts_Last_FloorStart(t *testing.T) {
	dir := t.TempDir()
	starts := []uint64{0, 1000, 5000}
	for _, s := range starts {
		f, err := os.Create(filepath.Join(dir, NameFor(s)))
		if err != nil {
			t.Fatalf("create segment file: %v", err)
		}
		f.Close()
	}
	// A non-segment file should be ignored.
	if f, err := os.Create(filepath.Join(dir, "ignore.txt")); err == nil {
		f.Close()
	}

	d := Dir{Path: dir}

	names, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != len(starts) {
		t.Fatalf("List returned %d names, want %d", len(names), len(starts))
	}

	got, err := d.Starts()
	if err != nil {
		t.Fatalf("Starts: %v", err)
	}
	for i, s := range starts {
		if got[i] != s {
			t.Fatalf("Starts()[%d] = %d, want %d", i, got[i], s)
		}
	}

	last, ok, err := d.Last()
	if err != nil || !ok {
		t.Fatalf("Last: %q %v %v", last, ok, err)
	}
	if last != NameFor(5000) {
		t.Fatalf("Last() = %q, want %q", last, NameFor(5000))
	}

	floor, ok, err := d.FloorStart(4999)
	if err != nil || !ok || floor != 1000 {
		t.Fatalf("FloorStart(4999) = %d, %v, %v; want 1000, true, nil", floor, ok, err)
	}

	_, ok, err = d.FloorStart(0)
	if err != nil || !ok {
		t.Fatalf("FloorStart(0) should resolve to the first segment")
	}
}

func TestDir_Last_Empty(t *testing.T) {
	dir := t.TempDir()
	d := Dir{Path: dir}
	_, ok, err := d.Last()
	if err != nil {
		t.Fatalf("Last on empty dir: %v", err)
	}
	if ok {
		t.Fatal("Last on empty dir should return ok=false")
	}
}
