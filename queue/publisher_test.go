package queue

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	qconfig "github.com/fluxorio/flowqueue/internal/config"
	qerrors "github.com/fluxorio/flowqueue/internal/errors"
)

func testParams() qconfig.Params {
	return qconfig.Params{
		SyncThrottleMS: 1,
		WindowSize:     64 * 1024,
		MaxFileSize:    256 * 1024,
		PageSize:       4096,
	}.Normalize()
}

func TestPublisher_Push_CommittedOffsetsAreMonotonic(t *testing.T) {
	dir := t.TempDir()
	pub, err := OpenPublisher(dir, testParams(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	o1, err := pub.Push([]byte("one"))
	require.NoError(t, err)
	o2, err := pub.Push([]byte("two"))
	require.NoError(t, err)
	require.Greater(t, o2, o1)
}

func TestPublisher_PushVector_ConcatenatesPayload(t *testing.T) {
	dir := t.TempDir()
	pub, err := OpenPublisher(dir, testParams(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	_, err = pub.PushVector([][]byte{[]byte("foo"), []byte("bar")})
	require.NoError(t, err)

	sub, err := OpenSubscriber(dir, testParams(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	var got []string
	_, err = sub.Pull(0, 200*time.Millisecond, func(offset int64, payload []byte) bool {
		got = append(got, string(payload))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"foobar"}, got)
}

func TestPublisher_Open_SecondPublisherFailsAlreadyOpen(t *testing.T) {
	dir := t.TempDir()
	pub, err := OpenPublisher(dir, testParams(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	_, err = OpenPublisher(dir, testParams(), zerolog.Nop())
	require.Error(t, err)
	require.Equal(t, qerrors.AlreadyOpen, qerrors.KindOf(err))
}

func TestPublisher_RollsSegmentPastThreshold(t *testing.T) {
	dir := t.TempDir()
	params := qconfig.Params{
		SyncThrottleMS: 1,
		WindowSize:     4096,
		MaxFileSize:    8192,
		PageSize:       4096,
	}.Normalize()

	pub, err := OpenPublisher(dir, params, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	payload := make([]byte, 2048)
	for i := 0; i < 10; i++ {
		_, err := pub.Push(payload)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, pub.Stats().Rolls, uint64(1))
}

func TestPublisher_Reopen_RecoversCommittedOffset(t *testing.T) {
	dir := t.TempDir()
	params := testParams()

	pub, err := OpenPublisher(dir, params, zerolog.Nop())
	require.NoError(t, err)

	last, err := pub.Push([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	pub2, err := OpenPublisher(dir, params, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub2.Close() })

	next, err := pub2.Push([]byte("after restart"))
	require.NoError(t, err)
	require.Greater(t, next, last)
	// One header byte, one varint length byte, then the 13-byte payload.
	require.Equal(t, last+int64(2+len("after restart")), next)
}
