package pipelink

import (
	"sync"
	"time"
)

// MetricsSnapshot is a point-in-time copy of transport activity counters.
type MetricsSnapshot struct {
	// Message flow
	MessagesOut int `json:"messages_out"`
	MessagesIn  int `json:"messages_in"`

	// Transport faults
	JSONErrors     int `json:"json_errors"`     // lines delivered as jsonerr messages
	SkippedLines   int `json:"skipped_lines"`   // parseable but invalid envelopes
	WriteErrors    int `json:"write_errors"`    // per-attempt write/encode failures
	DispatchErrors int `json:"dispatch_errors"` // unknown names + handler failures

	// Queue high-water marks
	InboundDepth     int `json:"inbound_depth"`
	InboundMaxDepth  int `json:"inbound_max_depth"`
	OutboundDepth    int `json:"outbound_depth"`
	OutboundMaxDepth int `json:"outbound_max_depth"`

	// Lifecycle
	Restarts int `json:"restarts"`

	Timestamp time.Time `json:"timestamp"`
}

// Metrics is a thread-safe collector of transport counters. Every Process
// and Interface owns one; queues and restarts survive Reset so counters
// reflect the lifetime of the owner, not a single child generation.
type Metrics struct {
	mu sync.Mutex

	messagesOut    int
	messagesIn     int
	jsonErrors     int
	skippedLines   int
	writeErrors    int
	dispatchErrors int

	inboundDepth     int
	inboundMaxDepth  int
	outboundDepth    int
	outboundMaxDepth int

	restarts int
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageOut counts one successfully written outbound message.
func (m *Metrics) RecordMessageOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesOut++
}

// RecordMessageIn counts one decoded and enqueued inbound message.
func (m *Metrics) RecordMessageIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesIn++
}

// RecordJSONError counts one line delivered as a jsonerr message.
func (m *Metrics) RecordJSONError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jsonErrors++
}

// RecordSkippedLine counts one line dropped for an invalid envelope.
func (m *Metrics) RecordSkippedLine() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skippedLines++
}

// RecordWriteError counts one failed write or encode attempt.
func (m *Metrics) RecordWriteError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrors++
}

// RecordDispatchError counts one dispatch failure.
func (m *Metrics) RecordDispatchError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchErrors++
}

// RecordRestart counts one Reset cycle.
func (m *Metrics) RecordRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
}

// ObserveQueueDepths records current queue depths and updates the
// high-water marks.
func (m *Metrics) ObserveQueueDepths(inbound, outbound int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inboundDepth = inbound
	if inbound > m.inboundMaxDepth {
		m.inboundMaxDepth = inbound
	}
	m.outboundDepth = outbound
	if outbound > m.outboundMaxDepth {
		m.outboundMaxDepth = outbound
	}
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSnapshot{
		MessagesOut:      m.messagesOut,
		MessagesIn:       m.messagesIn,
		JSONErrors:       m.jsonErrors,
		SkippedLines:     m.skippedLines,
		WriteErrors:      m.writeErrors,
		DispatchErrors:   m.dispatchErrors,
		InboundDepth:     m.inboundDepth,
		InboundMaxDepth:  m.inboundMaxDepth,
		OutboundDepth:    m.outboundDepth,
		OutboundMaxDepth: m.outboundMaxDepth,
		Restarts:         m.restarts,
		Timestamp:        time.Now(),
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messagesOut = 0
	m.messagesIn = 0
	m.jsonErrors = 0
	m.skippedLines = 0
	m.writeErrors = 0
	m.dispatchErrors = 0
	m.inboundDepth = 0
	m.inboundMaxDepth = 0
	m.outboundDepth = 0
	m.outboundMaxDepth = 0
	m.restarts = 0
}
