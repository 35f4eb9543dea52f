package pipelink

import (
	"bufio"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// runWriterPump drains q and writes each message as one encoded line to w,
// looping until cont reports false. A failed encode or write is counted and
// logged, then the pump moves on; one bad message must not stall the stream.
// Writes go straight to the destination (pipes are unbuffered), so the peer
// observes each message as soon as it is written.
//
// If owned is non-nil it is closed when the pump exits; a child's stdin is
// owned by its writer pump and closing it tells the child no more input is
// coming.
func runWriterPump(cont func() bool, q *Queue, w io.Writer, owned io.Closer, interval time.Duration, log zerolog.Logger, m *Metrics) {
	defer func() {
		if owned != nil {
			owned.Close()
		}
	}()

	for cont() {
		msg := q.PopWait(interval)
		if msg == nil {
			continue
		}

		data, err := msg.Encode()
		if err != nil {
			m.RecordWriteError()
			log.Warn().Err(err).Str("message", msg.Name).Msg("dropping unencodable message")
			continue
		}
		if _, err := w.Write(data); err != nil {
			m.RecordWriteError()
			log.Warn().Err(err).Str("message", msg.Name).Msg("write failed")
			continue
		}
		m.RecordMessageOut()
	}
}

// runReaderPump reads lines from r until end-of-stream, decodes each one
// tagged with channel, and enqueues the result on q. A line that fails to
// decode is skipped (or delivered as a jsonerr message), never aborts the
// pump. Stream-level read errors are reported through onErr (if non-nil)
// and terminate the pump.
//
// If owned is non-nil it is closed when the pump exits.
func runReaderPump(r io.Reader, owned io.Closer, channel string, q *Queue, log zerolog.Logger, m *Metrics, onErr func(error)) {
	defer func() {
		if owned != nil {
			owned.Close()
		}
	}()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			pumpLine(line, channel, q, log, m, onErr)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				log.Debug().Err(err).Str("channel", channel).Msg("stream read failed")
				if onErr != nil {
					onErr(err)
				}
			}
			return
		}
	}
}

// pumpLine decodes one line and enqueues the result.
func pumpLine(line, channel string, q *Queue, log zerolog.Logger, m *Metrics, onErr func(error)) {
	msg, err := DecodeLine(line, channel)
	if err != nil {
		if errors.Is(err, ErrEmptyLine) {
			return
		}
		m.RecordSkippedLine()
		log.Debug().Err(err).Str("channel", channel).Msg("skipping undecodable line")
		if onErr != nil {
			onErr(err)
		}
		return
	}
	if msg.Name == MessageJSONError {
		m.RecordJSONError()
	}
	q.Push(msg)
	m.RecordMessageIn()
}
