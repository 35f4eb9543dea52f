package pipelink

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_PidFile(t *testing.T) {
	t.Run("start records own pid", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "worker.pid")
		w := NewWorker(pidFile, zerolog.Nop())

		require.NoError(t, w.Start())

		data, err := os.ReadFile(pidFile)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
	})

	t.Run("start over own stale pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "worker.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644))

		w := NewWorker(pidFile, zerolog.Nop())
		// KillCopy must not kill this very process.
		require.NoError(t, w.Start())
		assert.True(t, w.Iface.IsRunning())
	})

	t.Run("unwritable pid file fails", func(t *testing.T) {
		w := NewWorker(filepath.Join(t.TempDir(), "missing", "dir", "worker.pid"), zerolog.Nop())
		assert.Error(t, w.Start())
	})
}

func TestWorker_KillCopy(t *testing.T) {
	t.Run("missing pid file is fine", func(t *testing.T) {
		w := NewWorker(filepath.Join(t.TempDir(), "nope.pid"), zerolog.Nop())
		w.KillCopy()
	})

	t.Run("garbage pid file is fine", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "worker.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("not a pid"), 0o644))

		w := NewWorker(pidFile, zerolog.Nop())
		w.KillCopy()
	})

	t.Run("nonexistent pid is fine", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "worker.pid")
		// PIDs are bounded well below this on any reasonable system.
		require.NoError(t, os.WriteFile(pidFile, []byte("999999999"), 0o644))

		w := NewWorker(pidFile, zerolog.Nop())
		w.KillCopy()
	})
}
