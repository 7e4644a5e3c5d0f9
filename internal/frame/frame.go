// Package frame implements the on-disk record framing (spec §4.4):
// [0xF0|vlen][varint length][payload], written and scanned over a
// mmap.Window. It generalizes the teacher's pkg/appendlog fixed
// 12-byte [offset][len] header (appendToDisk/scanSegmentMaxOffset) into the
// spec's variable-length varint header with a magic-nibble recovery scan.
package frame

import (
	"github.com/fluxorio/flowqueue/internal/errors"
	"github.com/fluxorio/flowqueue/internal/mmap"
	"github.com/fluxorio/flowqueue/internal/varint"
)

// magicNibble marks the start of every frame header.
const magicNibble = 0xF0

// Put writes one framed record to w and returns the writer's new logical
// position. An empty payload is legal (spec §3 Record: "L = 0 is legal").
func Put(w *mmap.Window, payload []byte) (int64, error) {
	var lenBuf [varint.MaxLen]byte
	encoded := varint.Encode(lenBuf[:0], uint64(len(payload)))
	vlen := len(encoded)
	if vlen > 0x0F {
		return 0, errors.New(errors.InvalidArgument, "frame.Put", "payload length varint too long")
	}

	header := byte(magicNibble | vlen)
	if _, err := w.Write([]byte{header}); err != nil {
		return 0, err
	}
	if _, err := w.Write(encoded); err != nil {
		return 0, err
	}
	return w.Write(payload)
}

// PutConcat writes a single framed record whose length is the sum of the
// buffers' lengths, followed by each buffer in order (spec §4.6's push of a
// payload vector: indistinguishable on disk from one flat payload).
func PutConcat(w *mmap.Window, buffers [][]byte) (int64, error) {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}

	var lenBuf [varint.MaxLen]byte
	encoded := varint.Encode(lenBuf[:0], uint64(total))
	vlen := len(encoded)
	if vlen > 0x0F {
		return 0, errors.New(errors.InvalidArgument, "frame.PutConcat", "payload length varint too long")
	}

	header := byte(magicNibble | vlen)
	if _, err := w.Write([]byte{header}); err != nil {
		return 0, err
	}
	if _, err := w.Write(encoded); err != nil {
		return 0, err
	}
	var pos int64
	var err error
	for _, b := range buffers {
		pos, err = w.Write(b)
		if err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// Handler is invoked once per complete frame found by Scan. id is the
// position of the frame's header byte within the window's file (its
// LastPosition); callers add the segment's start offset to get the logical
// offset. Returning false stops the scan early.
type Handler func(id int64, payload []byte) bool

// Scan walks frames forward from the reader window's current cursor,
// delivering each complete one to handle, honoring the sliding window
// (spec §4.4 Scan). It stops cleanly (returning nil) at a non-frame byte,
// an incomplete trailing frame, or exhaustion of available data — callers
// distinguish "stopped early by handler" from "ran out of data" via the
// stopped return value.
func Scan(w *mmap.Window, handle Handler) (stopped bool, err error) {
	for {
		start := w.LastPosition()

		buf, avail, gerr := w.Get(1)
		if gerr != nil {
			if errors.KindOf(gerr) == errors.Exhausted {
				return false, nil
			}
			return false, gerr
		}
		if avail < 1 {
			return false, nil
		}
		header := buf[0]
		if header&0xF0 != magicNibble {
			return false, nil
		}
		vlen := int(header & 0x0F)

		buf, avail, gerr = w.Get(int64(1 + vlen))
		if gerr != nil || avail < int64(1+vlen) {
			if seekErr := w.Seek(start); seekErr != nil {
				return false, seekErr
			}
			buf, avail, gerr = w.Get(int64(1 + vlen))
			if gerr != nil || avail < int64(1+vlen) {
				return false, nil
			}
		}

		length, n, derr := varint.Decode(buf[1:])
		if derr != nil {
			return false, derr
		}
		if n != vlen {
			return false, errors.New(errors.MalformedFrame, "frame.Scan", "varint length mismatch")
		}

		need := int64(1 + vlen) + int64(length)
		buf, avail, gerr = w.Get(need)
		if gerr != nil || avail < need {
			if seekErr := w.Seek(start); seekErr != nil {
				return false, seekErr
			}
			buf, avail, gerr = w.Get(need)
			if gerr != nil || avail < need {
				return false, nil
			}
		}

		payload := buf[1+vlen : need]
		keepGoing := handle(start, payload)

		if _, err := w.Advance(need); err != nil {
			return false, err
		}
		if !keepGoing {
			return true, nil
		}
	}
}

// RecoveryPosition runs Scan against a read-only window opened over a
// segment and returns the offset of the last complete frame's end: the
// position a Publisher should resume writing from (spec §4.4 Recovery
// scan). Any unframed or zeroed tail is naturally discarded because it
// fails the magic-nibble check.
func RecoveryPosition(w *mmap.Window) (int64, error) {
	_, err := Scan(w, func(int64, []byte) bool { return true })
	if err != nil {
		return 0, err
	}
	return w.LastPosition(), nil
}
