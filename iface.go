package pipelink

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultWriterTimeout bounds the Interface writer loops' dequeue waits.
const DefaultWriterTimeout = 100 * time.Millisecond

// InterfaceConfig holds configuration for creating an Interface.
type InterfaceConfig struct {
	// OnStdinError is invoked whenever reading or decoding a stdin line
	// fails in a way the jsonerr fallback does not cover. It runs on the
	// reader goroutine and must not assume any particular context.
	OnStdinError func(error)

	// WriterTimeout bounds the writer loops' dequeue waits.
	// Defaults to DefaultWriterTimeout.
	WriterTimeout time.Duration

	// Logger receives transport diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Interface is the transport used when this process is the child being
// supervised by someone else. It mirrors Process: one reader pump on the
// process's own stdin (channel "in"), one writer pump each for stdout and
// stderr. The pumps start immediately on construction.
type Interface struct {
	log      zerolog.Logger
	interval time.Duration

	// StdinError fires for stdin read failures and undecodable envelopes.
	// Slots run on the reader goroutine.
	StdinError Signal[error]

	metrics *Metrics

	stdinQ  *Queue
	stdoutQ *Queue
	stderrQ *Queue

	running atomic.Bool
	writers errgroup.Group

	exit func(int)
}

// NewInterface creates an Interface on the real standard streams and starts
// its pumps.
func NewInterface(config InterfaceConfig) *Interface {
	return newInterface(config, os.Stdin, os.Stdout, os.Stderr, os.Exit)
}

// newInterface wires arbitrary streams so tests can run without touching
// the process's own stdio or exiting.
func newInterface(config InterfaceConfig, stdin io.Reader, stdout, stderr io.Writer, exit func(int)) *Interface {
	interval := config.WriterTimeout
	if interval <= 0 {
		interval = DefaultWriterTimeout
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	i := &Interface{
		log:      logger,
		interval: interval,
		metrics:  NewMetrics(),
		stdinQ:   NewQueue(),
		stdoutQ:  NewQueue(),
		stderrQ:  NewQueue(),
		exit:     exit,
	}
	if config.OnStdinError != nil {
		i.StdinError.Connect(config.OnStdinError)
	}

	i.running.Store(true)

	// The stdin reader is not joined on Stop: a blocking read on the
	// process's own stdin cannot be interrupted portably, and the process
	// exits right after the writers drain anyway.
	go runReaderPump(stdin, nil, ChannelIn, i.stdinQ, i.log, i.metrics, func(err error) {
		i.StdinError.Emit(err)
	})

	i.writers.Go(func() error {
		runWriterPump(i.running.Load, i.stdoutQ, stdout, nil, i.interval, i.log, i.metrics)
		return nil
	})
	i.writers.Go(func() error {
		runWriterPump(i.running.Load, i.stderrQ, stderr, nil, i.interval, i.log, i.metrics)
		return nil
	})

	return i
}

// Write enqueues a message for the parent. With toStderr set the message
// goes out on stderr instead of stdout. Never blocks.
func (i *Interface) Write(msg *Message, toStderr bool) {
	if toStderr {
		i.stderrQ.Push(msg)
	} else {
		i.stdoutQ.Push(msg)
	}
	i.metrics.ObserveQueueDepths(i.stdinQ.Len(), i.stdoutQ.Len()+i.stderrQ.Len())
}

// Send is shorthand for Write(NewMessage(name, args), false).
func (i *Interface) Send(name string, args Args) {
	i.Write(NewMessage(name, args), false)
}

// Read removes and returns the oldest message from stdin, or nil when none
// is queued. Never blocks.
func (i *Interface) Read() *Message {
	return i.stdinQ.TryPop()
}

// IsRunning reports whether the pumps are active.
func (i *Interface) IsRunning() bool {
	return i.running.Load()
}

// Metrics returns the transport metrics collector.
func (i *Interface) Metrics() *Metrics {
	return i.metrics
}

// Stop shuts the writer pumps down, waits for them, and exits the process.
// No-op if already stopped.
func (i *Interface) Stop() {
	if !i.running.CompareAndSwap(true, false) {
		return
	}
	_ = i.writers.Wait()
	i.exit(0)
}
