package sysvsem

import (
	"time"

	qerrors "github.com/fluxorio/flowqueue/internal/errors"
)

// pollInterval bounds how long a Client sleeps between failed non-blocking
// level checks (spec §4.5 client wait_next).
const pollInterval = 1 * time.Millisecond

// Client reads and blocks on a semaphore set it does not own. Multiple
// Clients (one or more Subscriber processes) may coexist (spec §4.5).
type Client struct {
	lockPath string
	semID    int
}

// OpenClient resolves the semaphore set for an existing queue via ftok,
// without taking the exclusive publisher lock. NotInitialized-equivalent
// (qerrors.NotFound) is returned if the lock file is missing.
func OpenClient(lockPath string) (*Client, error) {
	key, err := ftok(lockPath, 1)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.NotFound, "sysvsem.OpenClient", "ftok (queue not initialized)", err)
	}
	id, err := semget(key, numDigits, 0)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.NotFound, "sysvsem.OpenClient", "semget", err)
	}
	return &Client{lockPath: lockPath, semID: id}, nil
}

// Get reads the current committed offset (spec §4.5 client read).
func (c *Client) Get() (uint64, error) {
	digits, err := semctlGetAll(c.semID)
	if err != nil {
		if isRemoved(err) {
			return 0, qerrors.Wrap(qerrors.QueueGone, "sysvsem.Get", "semaphore removed", err)
		}
		return 0, qerrors.Wrap(qerrors.IoFailed, "sysvsem.Get", "semctl GETALL", err)
	}
	return decode(digits), nil
}

// WaitNext blocks until the committed offset exceeds prev or timeout
// elapses, returning the new value (or prev, unchanged, on timeout). It
// implements spec §4.5's reacquire loop: a non-blocking decrement/increment
// level detector tried high-digit-first, falling back to a short sleep
// between attempts.
func (c *Client) WaitNext(prev uint64, timeout time.Duration) (uint64, error) {
	deadline := time.Now().Add(timeout)
	prevDigits := encode(prev)

	for {
		v, err := c.Get()
		if err != nil {
			return prev, err
		}
		if v > prev {
			return v, nil
		}

		if time.Now().After(deadline) {
			return prev, nil
		}

		advanced, err := c.tryDetectAdvance(prevDigits)
		if err != nil {
			return prev, err
		}
		if advanced {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return prev, nil
		}
		c.blockBriefly(remaining)
	}
}

// tryDetectAdvance attempts the decrement-then-increment level detector on
// each digit, high digit first ("a change is bigger news" per spec §4.5).
func (c *Client) tryDetectAdvance(prevDigits [numDigits]uint16) (bool, error) {
	for i := numDigits - 1; i >= 0; i-- {
		threshold := int16(prevDigits[i]) + 1
		ops := []sembuf{
			{num: uint16(i), op: -threshold, flg: int16(ipcNoWait)},
			{num: uint16(i), op: threshold, flg: 0},
		}
		err := semop(c.semID, ops)
		if err == nil {
			return true, nil
		}
		if isWouldBlock(err) {
			continue
		}
		if isInterrupted(err) {
			continue
		}
		if isRemoved(err) {
			return false, qerrors.Wrap(qerrors.QueueGone, "sysvsem.WaitNext", "semaphore removed", err)
		}
		return false, qerrors.Wrap(qerrors.IoFailed, "sysvsem.WaitNext", "semop", err)
	}
	return false, nil
}

// blockBriefly sleeps up to pollInterval (or the remaining deadline, if
// shorter) before the caller re-checks Get(). spec §4.5 allows a real
// semtimedop-based park on digit 0 as an optimization; since s[0] is a
// monotonically-growing counter rather than a value this client can block
// "until changed" on without racing the publisher's own reset-on-overflow,
// a bounded sleep is the safe, always-correct fallback used here.
func (c *Client) blockBriefly(remaining time.Duration) {
	bound := pollInterval
	if remaining < bound {
		bound = remaining
	}
	time.Sleep(bound)
}
