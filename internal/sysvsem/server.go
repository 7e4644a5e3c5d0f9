// Package sysvsem implements the mixed-radix 64-bit progress counter (spec
// §4.5): a 5-semaphore SysV set encoding the publisher's committed offset,
// with a throttled flusher thread and a bounded-wait client primitive. No
// example in the retrieval pack implements SysV semaphores directly; the
// background-goroutine-with-stop-channel shape is grounded in the
// teacher's pkg/appendlog.fsStore flushLoop/flushWg, and the raw syscalls
// follow avogabo-EDRmount's direct use of golang.org/x/sys/unix.
package sysvsem

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	qerrors "github.com/fluxorio/flowqueue/internal/errors"
)

// DefaultThrottle is the flusher thread's wake interval (spec §6 default
// sync_throttle_ms).
const DefaultThrottle = 1 * time.Millisecond

// Server owns the semaphore set and lock-file exclusive lock for one
// publisher. Exactly one Server may exist for a queue directory at a time;
// a second Open fails with AlreadyOpen.
type Server struct {
	lockPath string
	lockFile *os.File
	semID    int

	throttle time.Duration

	lastValue atomic.Uint64
	sentValue atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// Open exclusively locks lockPath (creating it if absent), derives the
// semaphore key via ftok, creates the set if it doesn't exist, and starts
// the flusher thread. throttle <= 0 uses DefaultThrottle.
func Open(lockPath string, throttle time.Duration, logger zerolog.Logger) (*Server, error) {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.IoFailed, "sysvsem.Open", "open lock file", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, qerrors.Wrap(qerrors.AlreadyOpen, "sysvsem.Open", "another publisher holds the lock", err)
	}

	key, err := ftok(lockPath, 1)
	if err != nil {
		_ = f.Close()
		return nil, qerrors.Wrap(qerrors.IoFailed, "sysvsem.Open", "ftok", err)
	}

	id, err := semget(key, numDigits, ipcCreat|0o600)
	if err != nil {
		_ = f.Close()
		return nil, qerrors.Wrap(qerrors.IoFailed, "sysvsem.Open", "semget", err)
	}

	s := &Server{
		lockPath: lockPath,
		lockFile: f,
		semID:    id,
		throttle: throttle,
		stop:     make(chan struct{}),
		log:      logger,
	}

	// The semaphore set's values are left as they are here: if it was just
	// created, all digits are already zero, but an existing set from a
	// prior publisher may hold a committed offset we haven't read yet. The
	// caller (Publisher.Open) calls Set with the recovered offset right
	// after this returns, and until then lastValue and sentValue are both
	// zero, so the flusher sends nothing.

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

// Set synchronously stores v into the semaphore set via SETALL, updating
// both sent and last value. Used at startup/resume (spec §4.5).
func (s *Server) Set(v uint64) error {
	digits := encode(v)
	if err := semctlSetAll(s.semID, digits); err != nil {
		return qerrors.Wrap(qerrors.IoFailed, "sysvsem.Set", "semctl SETALL", err)
	}
	s.sentValue.Store(v)
	s.lastValue.Store(v)
	return nil
}

// Signal records v as the publisher's latest committed offset. It is
// non-blocking and constant time; the flusher thread does the kernel work
// out of band (spec §4.5).
func (s *Server) Signal(v uint64) {
	s.lastValue.Store(v)
}

func (s *Server) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.throttle)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.flushOnce()
			return
		case <-ticker.C:
			s.flushOnce()
		}
	}
}

func (s *Server) flushOnce() {
	last := s.lastValue.Load()
	sent := s.sentValue.Load()
	if last <= sent {
		return
	}
	delta := last - sent
	if err := s.sendSignal(delta); err != nil {
		s.log.Warn().Err(err).Msg("sysvsem: send_signal failed")
		return
	}
	s.sentValue.Store(last)
}

// sendSignal implements spec §4.5's overflow-carry procedure: increments
// s[0] by step (capped below the base to stay semop-safe), carrying
// overflow into s[1..4] via non-blocking two-op detectors, looping until
// the full delta has been applied.
func (s *Server) sendSignal(delta uint64) error {
	const maxStep = uint64(base) * 9 / 10
	for delta > 0 {
		step := delta
		if step > maxStep {
			step = maxStep
		}

		if err := s.incrementWithCarry(0, step); err != nil {
			return err
		}
		for i := 0; i < numDigits-1; i++ {
			if err := s.carryOverflow(i, i+1); err != nil {
				return err
			}
		}
		delta -= step
	}
	return nil
}

// incrementWithCarry adds step to s[i]. It first attempts the three-op
// compound (increment, non-blocking decrement-by-base, increment next
// digit) atomically; if that fails because s[i] hasn't reached base, it
// falls back to the unconditional increment alone.
func (s *Server) incrementWithCarry(i int, step uint64) error {
	compound := []sembuf{
		{num: uint16(i), op: int16(step), flg: 0},
		{num: uint16(i), op: -int16(base), flg: int16(ipcNoWait)},
		{num: uint16(i + 1), op: 1, flg: 0},
	}
	err := s.retryEINTR(func() error { return semop(s.semID, compound) })
	if err == nil {
		return nil
	}
	if isWouldBlock(err) {
		plain := []sembuf{{num: uint16(i), op: int16(step), flg: 0}}
		return s.retryEINTR(func() error { return semop(s.semID, plain) })
	}
	if isRemoved(err) {
		return qerrors.Wrap(qerrors.QueueGone, "sysvsem.incrementWithCarry", "semaphore removed", err)
	}
	return qerrors.Wrap(qerrors.IoFailed, "sysvsem.incrementWithCarry", "semop", err)
}

// carryOverflow attempts the non-blocking two-op overflow carry from digit
// from into digit to: a no-op unless from has reached base.
func (s *Server) carryOverflow(from, to int) error {
	ops := []sembuf{
		{num: uint16(from), op: -int16(base), flg: int16(ipcNoWait)},
		{num: uint16(to), op: 1, flg: 0},
	}
	err := s.retryEINTR(func() error { return semop(s.semID, ops) })
	if err == nil {
		return nil
	}
	if isWouldBlock(err) {
		return nil
	}
	if isRemoved(err) {
		return qerrors.Wrap(qerrors.QueueGone, "sysvsem.carryOverflow", "semaphore removed", err)
	}
	return qerrors.Wrap(qerrors.IoFailed, "sysvsem.carryOverflow", "semop", err)
}

func (s *Server) retryEINTR(f func() error) error {
	for {
		err := f()
		if err == nil || !isInterrupted(err) {
			return err
		}
	}
}

// CleanupAll removes the semaphore set, releases the flock, and closes and
// unlinks the lock file. Intended for graceful teardown and test reset
// (spec §4.8); never called in the steady path.
func (s *Server) CleanupAll() error {
	s.Close()
	if err := semctlRemove(s.semID); err != nil && !isRemoved(err) {
		return qerrors.Wrap(qerrors.IoFailed, "sysvsem.CleanupAll", "semctl IPC_RMID", err)
	}
	return os.Remove(s.lockPath)
}

// Close stops the flusher thread and releases the lock file, without
// removing the semaphore set (which persists across publisher restarts,
// spec §3 Ownership and lifecycle).
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	err := flockUnlock(s.lockFile)
	if cerr := s.lockFile.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ID returns the SysV semaphore set identifier, mostly useful for logging
// and tests.
func (s *Server) ID() int { return s.semID }
