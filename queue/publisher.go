// Package queue implements the Publisher and Subscriber (spec §4.6, §4.7):
// the append-only producer and the tailing consumer built on top of
// internal/mmap, internal/segment, internal/frame and internal/sysvsem.
// It generalizes the teacher's pkg/appendlog.fsStore (open/recover,
// rotate-by-size, append) from a bufio-buffered flat file into an
// mmap-backed, framed, semaphore-signaling segmented log.
package queue

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	qconfig "github.com/fluxorio/flowqueue/internal/config"
	qerrors "github.com/fluxorio/flowqueue/internal/errors"
	"github.com/fluxorio/flowqueue/internal/frame"
	"github.com/fluxorio/flowqueue/internal/mmap"
	"github.com/fluxorio/flowqueue/internal/segment"
	"github.com/fluxorio/flowqueue/internal/sysvsem"
	"github.com/fluxorio/flowqueue/internal/telemetry"
)

// lockFileName is the stable IPC key and exclusive-lock token for a queue
// directory (spec §2).
const lockFileName = "sync.lck"

// Stats aggregates cumulative Publisher activity for observability.
type Stats struct {
	Pushed       uint64
	BytesWritten uint64
	Rolls        uint64
	WindowStats  mmap.Stats
}

// Publisher owns the queue's lock file and, transitively, the exclusive
// right to append and roll segments. At most one Publisher may be open on
// a queue directory at a time (spec §3 Ownership and lifecycle).
type Publisher struct {
	mu sync.Mutex

	dir    string
	params qconfig.Params

	sem *sysvsem.Server

	segStart        int64
	writer          *mmap.Window
	lastWriterRemap uint64

	metrics *telemetry.Metrics
	log     zerolog.Logger

	stats Stats
}

// OpenPublisher implements spec §4.6 Publisher.Open: ensure the directory,
// acquire the exclusive lock, recover the last segment's write position,
// roll if the recovered segment already exceeds the configured thresholds,
// publish the resume offset to the semaphore set, and seek the writer
// window into place.
func OpenPublisher(dir string, params qconfig.Params, logger zerolog.Logger) (*Publisher, error) {
	params = params.Normalize()

	if err := ensureQueueDir(dir); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(dir, lockFileName)
	throttle := time.Duration(params.SyncThrottleMS) * time.Millisecond
	sem, err := sysvsem.Open(lockPath, throttle, logger)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	p := &Publisher{
		dir:     dir,
		params:  params,
		sem:     sem,
		metrics: telemetry.Get(),
		log:     logger.With().Str("session_id", sessionID).Logger(),
	}

	segStart, lastPosition, err := p.recover()
	if err != nil {
		_ = sem.Close()
		return nil, err
	}

	if params.ShouldRoll(lastPosition) {
		segStart = segStart + lastPosition
		lastPosition = 0
		p.stats.Rolls++
	}
	p.segStart = segStart

	if err := sem.Set(uint64(segStart + lastPosition)); err != nil {
		_ = sem.Close()
		return nil, err
	}

	segPath := filepath.Join(dir, segment.NameFor(uint64(segStart)))
	writer, err := mmap.Open(segPath, mmap.Writer, params.WindowSize, params.PageSize)
	if err != nil {
		_ = sem.Close()
		return nil, err
	}
	if lastPosition != 0 {
		if err := writer.Seek(lastPosition); err != nil {
			_ = writer.Close()
			_ = sem.Close()
			return nil, err
		}
	}
	p.writer = writer

	p.log.Info().Str("dir", dir).Int64("resume_offset", segStart+lastPosition).Msg("publisher opened")
	return p, nil
}

// recover enumerates existing segments and, if any exist, replays the last
// one's frames to find the resume position (spec §4.4 Recovery scan).
func (p *Publisher) recover() (segStart, lastPosition int64, err error) {
	sd := segment.Dir{Path: p.dir}
	name, ok, err := sd.Last()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, nil
	}
	start, valid := segment.ParseOffset(name)
	if !valid {
		return 0, 0, qerrors.New(qerrors.MalformedFrame, "queue.recover", "unparsable segment name: "+name)
	}

	reader, err := mmap.Open(filepath.Join(p.dir, name), mmap.Reader, p.params.WindowSize, p.params.PageSize)
	if err != nil {
		if qerrors.KindOf(err) == qerrors.Empty {
			return int64(start), 0, nil
		}
		return 0, 0, err
	}
	defer reader.Close()

	pos, err := frame.RecoveryPosition(reader)
	if err != nil {
		return 0, 0, err
	}
	return int64(start), pos, nil
}

// Push appends one framed record and returns the new committed logical
// offset (spec §4.6 push). Exactly one goroutine may call Push at a time.
func (p *Publisher) Push(payload []byte) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := frame.Put(p.writer, payload)
	if err != nil {
		return 0, err
	}
	return p.afterWrite(pos, len(payload))
}

// PushVector writes a single framed record whose length is the sum of the
// buffer lengths, followed by each buffer concatenated (spec §4.6: the
// reader cannot tell this apart from a flat payload).
func (p *Publisher) PushVector(buffers [][]byte) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := frame.PutConcat(p.writer, buffers)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	return p.afterWrite(pos, total)
}

// afterWrite signals the committed offset to the semaphore set, updates
// stats, and rolls the segment if the thresholds are now exceeded. A roll
// is only ever evaluated after a record has completed (spec §4.6: "rolling
// in the middle of one record is forbidden").
func (p *Publisher) afterWrite(writerPos int64, payloadLen int) (int64, error) {
	committed := p.segStart + writerPos
	p.sem.Signal(uint64(committed))

	p.stats.Pushed++
	p.stats.BytesWritten += uint64(payloadLen)
	p.metrics.PushTotal.Inc()
	p.metrics.PushBytesTotal.Add(float64(payloadLen))
	p.metrics.CommittedOffset.Set(float64(committed))
	p.recordRemaps()

	if p.params.ShouldRoll(writerPos) {
		if err := p.roll(committed); err != nil {
			return committed, err
		}
	}
	return committed, nil
}

func (p *Publisher) roll(newStart int64) error {
	if err := p.writer.Close(); err != nil {
		p.log.Warn().Err(err).Msg("publisher: error closing rolled segment")
	}
	segPath := filepath.Join(p.dir, segment.NameFor(uint64(newStart)))
	writer, err := mmap.Open(segPath, mmap.Writer, p.params.WindowSize, p.params.PageSize)
	if err != nil {
		return err
	}
	p.writer = writer
	p.segStart = newStart
	p.lastWriterRemap = 0
	p.stats.Rolls++
	p.metrics.SegmentRolls.Inc()
	p.recordRemaps()
	p.log.Debug().Int64("segment_start", newStart).Msg("publisher: rolled segment")
	return nil
}

// recordRemaps reports any mmap remaps the writer window has accumulated
// since the last observation to the window_remaps metric (spec §4.2
// Statistics, surfaced per-component rather than left to silently
// accumulate unread inside mmap.Stats).
func (p *Publisher) recordRemaps() {
	remaps := p.writer.Stats().Remaps
	if remaps > p.lastWriterRemap {
		p.metrics.WindowRemaps.WithLabelValues("writer").Add(float64(remaps - p.lastWriterRemap))
		p.lastWriterRemap = remaps
	}
}

// Stats returns a snapshot of cumulative Publisher activity.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.WindowStats = p.writer.Stats()
	return s
}

// Close closes the writer window and stops the semaphore server's flusher
// thread, releasing the lock file. The semaphore set itself persists
// across restarts (spec §3).
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if err := p.sem.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ensureQueueDir creates dir with mode 0700 if absent, and rejects existing
// directories with group/other access bits set (spec §4.6 step 2, §6
// on-disk layout).
func ensureQueueDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o700)
		}
		return qerrors.Wrap(qerrors.IoFailed, "queue.ensureQueueDir", "stat", err)
	}
	if !info.IsDir() {
		return qerrors.New(qerrors.InvalidArgument, "queue.ensureQueueDir", "path is not a directory")
	}
	if info.Mode().Perm()&0o077 != 0 {
		return qerrors.New(qerrors.PermissionDenied, "queue.ensureQueueDir", "queue directory must not grant group/other access")
	}
	return nil
}
