// Package mmap implements the page-aligned sliding mmap window (spec §4.2)
// that backs both the Publisher's writer segment and the Subscriber's
// reader segment. It is grounded in the mmap call shapes used by
// other_examples' dittofs and semihalev-log WAL writers
// (unix.Mmap/Munmap/Msync with PROT_READ|PROT_WRITE and MAP_SHARED), adapted
// from a single growable region into a window that slides forward over an
// arbitrarily large file.
package mmap

import (
	"os"

	"golang.org/x/sys/unix"

	qerrors "github.com/fluxorio/flowqueue/internal/errors"
)

// DefaultWindowSize is the default mapped window span (spec §6 default
// window_size).
const DefaultWindowSize = 80 << 20

// Mode selects writer or reader behavior for Open.
type Mode int

const (
	Writer Mode = iota
	Reader
)

// Stats aggregates cumulative window activity, surfaced by the Publisher
// and Subscriber for observability (spec §4.2 Statistics).
type Stats struct {
	Remaps  uint64
	BytesIO uint64
}

// Window is a page-aligned mmap view of one file plus a cursor, shared by
// both writer and reader modes (spec's "Dynamic dispatch on writer/reader
// base" note: one concrete type with a mode flag, no inheritance needed).
type Window struct {
	mode Mode

	path     string
	pageSize int64
	winSize  int64

	file *os.File
	data []byte

	alignedOffset int64 // page-aligned start of the current mapping
	cursor        int64 // position within data, in [0, len(data)]

	stats Stats
}

// Open establishes a window over path at logical file offset 0 (callers
// that need to resume mid-file call Seek after Open). windowSize <= 0 uses
// DefaultWindowSize; pageSize <= 0 uses the host page size.
func Open(path string, mode Mode, windowSize, pageSize int64) (*Window, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if pageSize <= 0 {
		pageSize = int64(os.Getpagesize())
	}

	w := &Window{
		mode:     mode,
		path:     path,
		pageSize: pageSize,
		winSize:  windowSize,
	}

	switch mode {
	case Writer:
		f, err := openWriterFile(path)
		if err != nil {
			return nil, qerrors.Wrap(qerrors.IoFailed, "mmap.Open", "open writer file", err)
		}
		w.file = f
		if err := w.mapAt(0, windowSize, true); err != nil {
			_ = f.Close()
			return nil, err
		}
	case Reader:
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, qerrors.Wrap(qerrors.NotFound, "mmap.Open", "segment missing", err)
			}
			return nil, qerrors.Wrap(qerrors.IoFailed, "mmap.Open", "open reader file", err)
		}
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, qerrors.Wrap(qerrors.IoFailed, "mmap.Open", "stat reader file", err)
		}
		if st.Size() == 0 {
			_ = f.Close()
			return nil, qerrors.New(qerrors.Empty, "mmap.Open", "segment is empty")
		}
		w.file = f
		size := windowSize
		if fsize := st.Size(); fsize < size {
			size = fsize
		}
		if err := w.mapAt(0, size, false); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return w, nil
}

func openWriterFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
}

// alignDown rounds offset down to the nearest page boundary.
func (w *Window) alignDown(offset int64) int64 {
	return (offset / w.pageSize) * w.pageSize
}

// mapAt (re)maps the window so that last_position == offset, with size
// bytes of room past it (spec §4.2 Alignment rule). grow requests the file
// be extended (ftruncate) to cover the mapping; readers never grow.
func (w *Window) mapAt(offset, size int64, grow bool) error {
	if err := w.unmapLocked(); err != nil {
		return err
	}

	aligned := w.alignDown(offset)
	cursor := offset - aligned
	mapSize := size + 2*w.pageSize

	if grow {
		needed := aligned + mapSize
		st, err := w.file.Stat()
		if err != nil {
			return qerrors.Wrap(qerrors.IoFailed, "mmap.mapAt", "stat", err)
		}
		if st.Size() < needed {
			if err := w.file.Truncate(needed); err != nil {
				return qerrors.Wrap(qerrors.IoFailed, "mmap.mapAt", "ftruncate", err)
			}
		}
	} else {
		st, err := w.file.Stat()
		if err != nil {
			return qerrors.Wrap(qerrors.IoFailed, "mmap.mapAt", "stat", err)
		}
		if aligned >= st.Size() {
			return qerrors.New(qerrors.Exhausted, "mmap.mapAt", "offset beyond file size")
		}
		if aligned+mapSize > st.Size() {
			mapSize = w.alignDown(st.Size()-aligned) + w.pageSize
			if mapSize <= 0 {
				mapSize = st.Size() - aligned
			}
		}
	}

	prot := unix.PROT_READ
	if w.mode == Writer {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(w.file.Fd()), aligned, int(mapSize), prot, unix.MAP_SHARED)
	if err != nil {
		return qerrors.Wrap(qerrors.MmapFailed, "mmap.mapAt", "mmap", err)
	}

	w.data = data
	w.alignedOffset = aligned
	w.cursor = cursor
	w.stats.Remaps++
	return nil
}

func (w *Window) unmapLocked() error {
	if w.data == nil {
		return nil
	}
	if w.mode == Writer {
		_ = unix.Msync(w.data, unix.MS_SYNC)
	}
	err := unix.Munmap(w.data)
	w.data = nil
	if err != nil {
		return qerrors.Wrap(qerrors.MmapFailed, "mmap.unmap", "munmap", err)
	}
	return nil
}

// LastPosition returns file_offset + cursor, the logical position within
// the file that the window currently points at.
func (w *Window) LastPosition() int64 {
	return w.alignedOffset + w.cursor
}

// Remaining returns the bytes left in the window before the next remap.
func (w *Window) Remaining() int64 {
	return int64(len(w.data)) - w.cursor
}

// GetPtr returns the slice at the cursor and the remaining length. It fails
// with Exhausted if the cursor has reached the end of the mapped region.
func (w *Window) GetPtr() ([]byte, int64, error) {
	if w.cursor >= int64(len(w.data)) {
		return nil, 0, qerrors.New(qerrors.Exhausted, "mmap.GetPtr", "cursor at window end")
	}
	return w.data[w.cursor:], int64(len(w.data)) - w.cursor, nil
}

// Advance moves the cursor forward by n bytes, failing with Exhausted if
// that would run past the mapped region.
func (w *Window) Advance(n int64) (int64, error) {
	if w.cursor+n > int64(len(w.data)) {
		return 0, qerrors.New(qerrors.Exhausted, "mmap.Advance", "advance past window end")
	}
	w.cursor += n
	return int64(len(w.data)) - w.cursor, nil
}

// Write copies data into the window, remapping forward whenever the window
// fills, until all of data has been written. Returns the new logical
// position. Writer mode only.
func (w *Window) Write(data []byte) (int64, error) {
	if w.mode != Writer {
		return 0, qerrors.New(qerrors.InvalidArgument, "mmap.Write", "window is not in writer mode")
	}
	for len(data) > 0 {
		remaining := int64(len(w.data)) - w.cursor
		if remaining <= 0 {
			if err := w.mapAt(w.LastPosition(), w.winSize, true); err != nil {
				return 0, err
			}
			continue
		}
		n := int64(len(data))
		if n > remaining {
			n = remaining
		}
		copy(w.data[w.cursor:w.cursor+n], data[:n])
		w.cursor += n
		w.stats.BytesIO += uint64(n)
		data = data[n:]
	}
	return w.LastPosition(), nil
}

// Get ensures at least minSize bytes are available at the cursor, remapping
// forward if necessary, and returns a slice of up to minSize bytes at the
// cursor together with the total number of bytes available. Reader mode
// only.
func (w *Window) Get(minSize int64) ([]byte, int64, error) {
	if w.mode != Reader {
		return nil, 0, qerrors.New(qerrors.InvalidArgument, "mmap.Get", "window is not in reader mode")
	}
	avail := int64(len(w.data)) - w.cursor
	if avail < minSize {
		if err := w.mapAt(w.LastPosition(), w.winSize, false); err != nil {
			return nil, 0, err
		}
		avail = int64(len(w.data)) - w.cursor
		if avail == 0 {
			return nil, 0, qerrors.New(qerrors.Exhausted, "mmap.Get", "no more data available")
		}
	}
	return w.data[w.cursor : w.cursor+min64(minSize, avail)], avail, nil
}

// Seek remaps the window so LastPosition() == pos. Writers extend the file
// as needed; readers fail with Exhausted if the page containing pos starts
// at or past the end of the file.
func (w *Window) Seek(pos int64) error {
	return w.mapAt(pos, w.winSize, w.mode == Writer)
}

// Stats returns a snapshot of cumulative remap/IO counters.
func (w *Window) Stats() Stats { return w.stats }

// Close msyncs (writer) and munmaps the region, then closes the file
// descriptor. The first munmap or close failure is returned to the caller;
// an msync failure is ignored.
func (w *Window) Close() error {
	err := w.unmapLocked()
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = qerrors.Wrap(qerrors.IoFailed, "mmap.Close", "close file", cerr)
	}
	return err
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
