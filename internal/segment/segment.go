// Package segment enumerates and names queue segment files (spec §4.3),
// adapted from the teacher's pkg/appendlog.listSegments/segmentPath
// (decimal "%06d.log" numbering) to the spec's 16-hex-digit,
// offset-named ".sq" files.
package segment

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	qerrors "github.com/fluxorio/flowqueue/internal/errors"
)

const (
	// Ext is the segment file extension.
	Ext = ".sq"
	// NameLen is the total filename length: 16 hex chars + ".sq".
	NameLen = 16 + len(Ext)
)

// Dir enumerates and names the segment files of one queue directory.
type Dir struct {
	Path string
}

// NameFor formats the 16-char uppercase hex filename for a segment whose
// first logical byte is offset.
func NameFor(offset uint64) string {
	return fmt.Sprintf("%016X%s", offset, Ext)
}

// ParseOffset extracts the start offset from a segment filename, failing
// if it doesn't match the fixed HHHHHHHHHHHHHHHH.sq pattern.
func ParseOffset(name string) (uint64, bool) {
	if len(name) != NameLen || !strings.HasSuffix(name, Ext) {
		return 0, false
	}
	hex := name[:len(name)-len(Ext)]
	for _, c := range hex {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// List returns the segment filenames in the directory, sorted ascending by
// start offset (equivalently, lexicographic order, since all names share a
// fixed width).
func (d Dir) List() ([]string, error) {
	ents, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.IoFailed, "segment.List", "read dir", err)
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if _, ok := ParseOffset(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Starts returns the start offsets of every segment, sorted ascending.
func (d Dir) Starts() ([]uint64, error) {
	names, err := d.List()
	if err != nil {
		return nil, err
	}
	starts := make([]uint64, 0, len(names))
	for _, n := range names {
		off, _ := ParseOffset(n)
		starts = append(starts, off)
	}
	return starts, nil
}

// Last returns the lexicographically greatest (= highest start offset)
// segment filename, or ok=false if the directory has none yet.
func (d Dir) Last() (name string, ok bool, err error) {
	names, err := d.List()
	if err != nil {
		return "", false, err
	}
	if len(names) == 0 {
		return "", false, nil
	}
	return names[len(names)-1], true, nil
}

// FloorStart returns the greatest start offset <= from, and ok=false if no
// segment qualifies (e.g. from predates the first segment, or the
// directory is empty).
func (d Dir) FloorStart(from uint64) (start uint64, ok bool, err error) {
	starts, err := d.Starts()
	if err != nil {
		return 0, false, err
	}
	for i := len(starts) - 1; i >= 0; i-- {
		if starts[i] <= from {
			return starts[i], true, nil
		}
	}
	return 0, false, nil
}
