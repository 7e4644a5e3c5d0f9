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

// DefaultPullTimeout bounds how long Pull waits for new data when the
// caller doesn't specify one (spec §4.7 pull timeout_ms).
const DefaultPullTimeout = 1 * time.Second

// RecordHandler is invoked once per record delivered by Pull. from is the
// record's absolute logical offset. Returning false stops delivery early,
// the same way frame.Handler does.
type RecordHandler func(from int64, payload []byte) bool

// SubscriberStats aggregates cumulative Subscriber activity for
// observability, mirroring Publisher's Stats (spec §5 Stats() accessors).
type SubscriberStats struct {
	Pulled         uint64
	BytesDelivered uint64
	WindowStats    mmap.Stats
}

// Subscriber tails a queue directory it does not own, resolving its
// current read segment lazily as the committed offset advances (spec
// §4.7). Any number of Subscribers may read the same queue concurrently.
type Subscriber struct {
	mu sync.Mutex

	dir    string
	params qconfig.Params

	client *sysvsem.Client

	segStart        int64
	reader          *mmap.Window
	lastReaderRemap uint64

	metrics *telemetry.Metrics
	log     zerolog.Logger

	stats SubscriberStats
}

// OpenSubscriber resolves the semaphore set for dir (which must already
// have been initialized by a Publisher at least once) without taking the
// exclusive publisher lock (spec §4.7 Open).
func OpenSubscriber(dir string, params qconfig.Params, logger zerolog.Logger) (*Subscriber, error) {
	params = params.Normalize()

	lockPath := filepath.Join(dir, lockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.New(qerrors.NotFound, "queue.Open", "queue has never been published to")
		}
		return nil, qerrors.Wrap(qerrors.IoFailed, "queue.Open", "stat lock file", err)
	}

	client, err := sysvsem.OpenClient(lockPath)
	if err != nil {
		return nil, err
	}

	return &Subscriber{
		dir:     dir,
		params:  params,
		client:  client,
		metrics: telemetry.Get(),
		log:     logger.With().Str("session_id", uuid.NewString()).Logger(),
	}, nil
}

// Pull blocks until the committed offset exceeds from or timeout elapses,
// then delivers every complete record from from to the end of the written
// data in the segment containing from, returning the offset to resume from
// on the next call (spec §4.7 pull algorithm). Records in later segments are
// delivered by later calls. A returned offset equal to from means nothing
// new arrived before the deadline.
func (s *Subscriber) Pull(from int64, timeout time.Duration, handle RecordHandler) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}

	latest, err := s.client.Get()
	if err != nil {
		return from, err
	}
	if int64(latest) <= from {
		latest, err = s.client.WaitNext(uint64(from), timeout)
		if err != nil {
			return from, err
		}
		if int64(latest) <= from {
			s.metrics.PullTimeouts.Inc()
			return from, nil
		}
	}

	if err := s.resolveSegment(from); err != nil {
		return from, err
	}
	if err := s.reader.Seek(from - s.segStart); err != nil {
		return from, err
	}

	delivered := 0
	var bytesDelivered int
	_, err = frame.Scan(s.reader, func(id int64, payload []byte) bool {
		delivered++
		bytesDelivered += len(payload)
		return handle(s.segStart+id, payload)
	})
	s.metrics.PullTotal.Add(float64(delivered))
	s.metrics.PullBytesTotal.Add(float64(bytesDelivered))
	s.stats.Pulled += uint64(delivered)
	s.stats.BytesDelivered += uint64(bytesDelivered)
	s.recordRemaps()
	if err != nil {
		return from, err
	}

	return s.segStart + s.reader.LastPosition(), nil
}

// SeekToEnd returns the committed offset currently stored in the semaphore
// set, without delivering any records. That value includes a Push only once
// the publisher's flusher has sent it (up to one sync_throttle_ms tick after
// Push returns). It is for subscribers that only care
// about records published from this point forward (spec §4.7's explicitly
// left-open "tail -f"-style resume semantics).
func (s *Subscriber) SeekToEnd() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.client.Get()
	if err != nil {
		return 0, err
	}
	return int64(latest), nil
}

// resolveSegment ensures s.reader is open on the segment containing from,
// reopening it if the current reader is stale or absent.
func (s *Subscriber) resolveSegment(from int64) error {
	sd := segment.Dir{Path: s.dir}
	start, ok, err := sd.FloorStart(uint64(from))
	if err != nil {
		return err
	}
	if !ok {
		return qerrors.New(qerrors.InvalidArgument, "queue.resolveSegment", "offset predates all segments")
	}

	if s.reader != nil && int64(start) == s.segStart {
		return nil
	}

	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}

	segPath := filepath.Join(s.dir, segment.NameFor(start))
	reader, err := mmap.Open(segPath, mmap.Reader, s.params.WindowSize, s.params.PageSize)
	if err != nil {
		return err
	}
	s.log.Debug().Uint64("segment_start", start).Msg("subscriber: switched segment")
	s.reader = reader
	s.segStart = int64(start)
	s.lastReaderRemap = 0
	s.recordRemaps()
	return nil
}

// recordRemaps reports any mmap remaps the reader window has accumulated
// since the last observation to the window_remaps metric (spec §4.2
// Statistics, surfaced per-component rather than left to silently
// accumulate unread inside mmap.Stats).
func (s *Subscriber) recordRemaps() {
	remaps := s.reader.Stats().Remaps
	if remaps > s.lastReaderRemap {
		s.metrics.WindowRemaps.WithLabelValues("reader").Add(float64(remaps - s.lastReaderRemap))
		s.lastReaderRemap = remaps
	}
}

// Stats returns a snapshot of cumulative Subscriber activity.
func (s *Subscriber) Stats() SubscriberStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	if s.reader != nil {
		stats.WindowStats = s.reader.Stats()
	}
	return stats
}

// Close releases the Subscriber's open reader window. The semaphore
// client itself holds no OS resources beyond the set id.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
