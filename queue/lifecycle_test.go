package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCleanupAll_RemovesSegmentsAndLockFile(t *testing.T) {
	dir := t.TempDir()
	params := testParams()

	pub, err := OpenPublisher(dir, params, zerolog.Nop())
	require.NoError(t, err)
	_, err = pub.Push([]byte("to be cleaned"))
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	require.NoError(t, CleanupAll(dir))

	_, err = os.Stat(filepath.Join(dir, lockFileName))
	require.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCleanupAll_FailsWhilePublisherOwnsLock(t *testing.T) {
	dir := t.TempDir()
	params := testParams()

	pub, err := OpenPublisher(dir, params, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	err = CleanupAll(dir)
	require.Error(t, err)
}
