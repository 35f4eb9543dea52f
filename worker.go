package pipelink

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// Worker is a convenience wrapper for single-instance child programs: it
// owns an Interface, keeps a PID file so a newly started copy can replace
// a stale one, and turns SIGINT into a clean exit.
type Worker struct {
	Iface *Interface

	pidFile string
	log     zerolog.Logger
}

// NewWorker creates a Worker whose Interface starts pumping immediately.
// Stdin read errors are logged through the given logger.
func NewWorker(pidFile string, logger zerolog.Logger) *Worker {
	w := &Worker{
		pidFile: pidFile,
		log:     logger,
	}
	w.Iface = NewInterface(InterfaceConfig{
		Logger: &logger,
		OnStdinError: func(err error) {
			w.log.Error().Err(err).Msg("stdin read error")
		},
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	go func() {
		<-sigChan
		w.log.Info().Msg("got SIGINT, exiting")
		w.Exit()
	}()

	return w
}

// KillCopy kills an already-running instance recorded in the PID file.
// Best-effort: a missing or stale file is ignored.
func (w *Worker) KillCopy() {
	data, err := os.ReadFile(w.pidFile)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	w.log.Info().Int("pid", pid).Msg("killing already running instance")
	_ = proc.Kill()
}

// Start replaces any running copy and records this process's PID.
func (w *Worker) Start() error {
	w.KillCopy()

	if err := os.WriteFile(w.pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file %s: %w", w.pidFile, err)
	}

	w.log.Info().Str("pid_file", w.pidFile).Msg("started")
	return nil
}

// Exit removes the PID file and stops the Interface, which exits the
// process. The file goes first: Interface.Stop does not return.
func (w *Worker) Exit() {
	if err := os.Remove(w.pidFile); err != nil && !os.IsNotExist(err) {
		w.log.Warn().Err(err).Msg("could not remove pid file")
	}
	w.Iface.Stop()
}
