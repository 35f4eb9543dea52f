package pipelink

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by Start when a supervising loop is
// already running for this Process.
var ErrAlreadyStarted = errors.New("already started")

// DefaultPollInterval bounds the supervising and writer loop sleeps.
const DefaultPollInterval = 10 * time.Millisecond

// Handler processes one inbound message's arguments.
type Handler func(args Args) error

// ChannelHandler is a Handler that also wants to know which stream the
// message arrived on ("out" or "err").
type ChannelHandler func(channel string, args Args) error

// ProcessConfig holds configuration for creating a Process.
type ProcessConfig struct {
	// Args is the child's command line; Args[0] is the executable.
	Args []string

	// PollInterval bounds the dispatch and writer loop sleeps.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Logger receives lifecycle and transport diagnostics.
	// Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Process owns and supervises a spawned child process, exchanging messages
// with it over the child's standard streams. The child's stdout is read on
// the "out" channel and its stderr on the "err" channel; outbound messages
// are written to the child's stdin.
//
// Inbound messages are either dispatched to handlers registered with
// Handle/HandleChannel, or — when no handlers are registered — left on the
// inbound queue for Read polling.
type Process struct {
	args     []string
	interval time.Duration
	baseLog  zerolog.Logger

	// Lifecycle hooks. Started fires from the supervising loop right after
	// the pumps are up. Exactly one of Stopped (explicit Stop) or Terminated
	// (child death, Terminate, Kill) fires per generation.
	Started    Signal[*Process]
	Stopped    Signal[*Process]
	Terminated Signal[*Process]

	// DispatchError fires for every failed dispatch: an UnknownMessageError
	// for unregistered names, or the error returned by a handler.
	DispatchError Signal[error]

	metrics *Metrics

	running       atomic.Bool
	termRequested atomic.Bool

	hmu      sync.RWMutex
	handlers map[string]ChannelHandler

	mu          sync.Mutex
	cmd         *exec.Cmd
	exited      chan struct{}
	inbound     *Queue
	outbound    *Queue
	loopDone    chan struct{}
	supervising bool
	generation  string
	log         zerolog.Logger
}

// NewProcess creates a Process for the given command line. The child is not
// spawned until Start.
func NewProcess(config ProcessConfig) *Process {
	interval := config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Process{
		args:     config.Args,
		interval: interval,
		baseLog:  logger,
		log:      logger,
		metrics:  NewMetrics(),
		handlers: make(map[string]ChannelHandler),
		inbound:  NewQueue(),
		outbound: NewQueue(),
	}
}

// Handle registers fn as the handler for messages named name.
func (p *Process) Handle(name string, fn Handler) {
	p.HandleChannel(name, func(_ string, args Args) error {
		return fn(args)
	})
}

// HandleChannel registers fn as the handler for messages named name,
// passing the channel tag along with the arguments.
func (p *Process) HandleChannel(name string, fn ChannelHandler) {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	p.handlers[name] = fn
}

// Start spawns the child with its three standard streams piped and launches
// the supervising loop. Returns ErrAlreadyStarted if a loop is already
// running.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.supervising {
		return ErrAlreadyStarted
	}
	if len(p.args) == 0 {
		return errors.New("no command configured")
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return fmt.Errorf("spawn %q: %w", p.args[0], err)
	}

	// The child holds its own copies of these ends now.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	p.cmd = cmd
	p.exited = exited
	p.generation = uuid.NewString()
	p.log = p.baseLog.With().Str("generation", p.generation).Logger()
	p.running.Store(true)
	p.termRequested.Store(false)
	p.supervising = true

	done := make(chan struct{})
	p.loopDone = done

	go p.supervise(cmd, stdinW, stdoutR, stderrR, p.inbound, p.outbound, exited, done)

	return nil
}

// supervise is the per-generation supervising loop: it launches the pumps,
// fires Started, dispatches inbound messages until Stop is requested or the
// child exits, then tears the generation down and fires exactly one of
// Stopped or Terminated.
func (p *Process) supervise(cmd *exec.Cmd, stdin, stdout, stderr *os.File, inQ, outQ *Queue, exited chan struct{}, done chan struct{}) {
	childAlive := func() bool {
		select {
		case <-exited:
			return false
		default:
			return true
		}
	}

	var pumps errgroup.Group
	pumps.Go(func() error {
		runWriterPump(childAlive, outQ, stdin, stdin, p.interval, p.log, p.metrics)
		return nil
	})
	pumps.Go(func() error {
		runReaderPump(stdout, stdout, ChannelOut, inQ, p.log, p.metrics, nil)
		return nil
	})
	pumps.Go(func() error {
		runReaderPump(stderr, stderr, ChannelErr, inQ, p.log, p.metrics, nil)
		return nil
	})

	p.log.Debug().Int("pid", cmd.Process.Pid).Strs("args", p.args).Msg("child started")
	p.Started.Emit(p)

	for p.running.Load() && childAlive() {
		p.dispatchPending(inQ)
		p.metrics.ObserveQueueDepths(inQ.Len(), outQ.Len())

		select {
		case <-exited:
		case <-time.After(p.interval):
		}
	}

	if childAlive() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	// running still set means nobody asked for this exit: the child died
	// on its own.
	unexpected := p.running.Load()

	_ = pumps.Wait()

	// Pumps are done, so the inbound queue is final. Deliver what is left
	// before reporting the exit.
	p.dispatchPending(inQ)

	p.running.Store(false)
	p.mu.Lock()
	p.supervising = false
	p.mu.Unlock()

	if unexpected || p.termRequested.Load() {
		p.log.Debug().Msg("child terminated")
		p.Terminated.Emit(p)
	} else {
		p.log.Debug().Msg("child stopped")
		p.Stopped.Emit(p)
	}
	close(done)
}

// dispatchPending drains the inbound queue through the dispatch table.
// With no handlers registered the queue is left alone so Read polling
// consumers can observe the messages.
func (p *Process) dispatchPending(inQ *Queue) {
	p.hmu.RLock()
	n := len(p.handlers)
	p.hmu.RUnlock()
	if n == 0 {
		return
	}

	for {
		msg := inQ.TryPop()
		if msg == nil {
			return
		}
		if err := p.dispatch(msg); err != nil {
			p.metrics.RecordDispatchError()
			p.log.Error().Err(err).Str("message", msg.Name).Str("channel", msg.Channel).Msg("dispatch failed")
			p.DispatchError.Emit(err)
		}
	}
}

func (p *Process) dispatch(msg *Message) error {
	p.hmu.RLock()
	fn, ok := p.handlers[msg.Name]
	p.hmu.RUnlock()

	if !ok {
		return &UnknownMessageError{Name: msg.Name, Channel: msg.Channel}
	}
	return fn(msg.Channel, msg.Args)
}

// Write enqueues a message for delivery to the child's stdin. Never blocks.
func (p *Process) Write(msg *Message) {
	p.mu.Lock()
	q := p.outbound
	p.mu.Unlock()
	q.Push(msg)
}

// Send is shorthand for Write(NewMessage(name, args)).
func (p *Process) Send(name string, args Args) {
	p.Write(NewMessage(name, args))
}

// Read removes and returns the oldest inbound message, or nil when the
// queue is empty. Never blocks.
func (p *Process) Read() *Message {
	p.mu.Lock()
	q := p.inbound
	p.mu.Unlock()
	return q.TryPop()
}

// Stop requests a graceful shutdown and waits for the supervising loop to
// finish. No-op if never started. The loop sends the child SIGTERM on the
// way out and waits for the stream pumps, so a child that ignores SIGTERM
// keeps Stop blocked until Terminate or Kill forces the issue.
func (p *Process) Stop() {
	p.mu.Lock()
	done := p.loopDone
	p.mu.Unlock()

	if done == nil {
		return
	}
	p.running.Store(false)
	<-done
}

// Terminate sends the child SIGTERM and waits for the supervising loop to
// finish. No-op if the child is not alive. Signal failures are swallowed.
func (p *Process) Terminate() {
	p.signalStop(func(proc *os.Process) error {
		return proc.Signal(syscall.SIGTERM)
	})
}

// Kill forcefully kills the child and waits for the supervising loop to
// finish. No-op if the child is not alive.
func (p *Process) Kill() {
	p.signalStop(func(proc *os.Process) error {
		return proc.Kill()
	})
}

func (p *Process) signalStop(sig func(*os.Process) error) {
	if !p.IsAlive() {
		return
	}

	p.mu.Lock()
	cmd := p.cmd
	done := p.loopDone
	p.mu.Unlock()

	p.termRequested.Store(true)
	if cmd != nil && cmd.Process != nil {
		_ = sig(cmd.Process)
	}
	p.running.Store(false)

	if done != nil {
		<-done
	}
}

// Reset stops and kills any current child, replaces both queues so no
// stale messages leak across generations, and starts a fresh child.
func (p *Process) Reset() error {
	if p.IsAlive() {
		p.Stop()
	}
	p.Kill()

	p.mu.Lock()
	p.inbound = NewQueue()
	p.outbound = NewQueue()
	p.mu.Unlock()

	p.metrics.RecordRestart()
	return p.Start()
}

// IsAlive reports whether a child process exists and has not yet been
// observed to exit.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()

	if cmd == nil || exited == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

// Generation returns the id of the current child generation, empty before
// the first Start. A fresh id is minted on every Start.
func (p *Process) Generation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Metrics returns the transport metrics collector.
func (p *Process) Metrics() *Metrics {
	return p.metrics
}
