package pipelink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Channel tags assigned by the pumps to inbound messages.
const (
	ChannelOut = "out" // child's stdout, seen by the Process side
	ChannelErr = "err" // child's stderr, seen by the Process side
	ChannelIn  = "in"  // own stdin, seen by the Interface side
)

// MessageJSONError is the sentinel name of messages produced from lines
// that failed to parse as JSON. The raw line is carried under ArgRawLine.
const MessageJSONError = "jsonerr"

// ArgRawLine is the argument key holding the offending line of a
// MessageJSONError message.
const ArgRawLine = "msg"

var (
	// ErrEmptyLine is returned by DecodeLine for empty input. It marks
	// end-of-stream / no-message, not malformed content.
	ErrEmptyLine = errors.New("empty line")

	// ErrInvalidMessage is returned by DecodeLine for input that parses as
	// JSON but is not a {"name": string, "args": object} envelope.
	ErrInvalidMessage = errors.New("invalid message envelope")
)

// Args is the open string-keyed argument map of a Message. Values are
// anything JSON can represent.
type Args map[string]any

// Message is one unit of the wire protocol: a name, an optional channel
// tag recording which stream it came from, and named arguments.
// Treat it as immutable after construction.
type Message struct {
	Name    string
	Channel string
	Args    Args
}

// NewMessage creates a message with no channel tag. Args may be nil.
func NewMessage(name string, args Args) *Message {
	if args == nil {
		args = Args{}
	}
	return &Message{Name: name, Args: args}
}

// wireMessage is the JSON envelope. Channel is deliberately absent: it is
// transport metadata assigned by the receiving side.
type wireMessage struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Encode serializes the message as one newline-terminated JSON line.
func (m *Message) Encode() ([]byte, error) {
	args := m.Args
	if args == nil {
		args = Args{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args of %q: %w", m.Name, err)
	}
	data, err := json.Marshal(wireMessage{Name: m.Name, Args: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", m.Name, err)
	}
	return append(data, '\n'), nil
}

// Equal reports structural equality: names and args match. The channel tag
// is excluded. Args are compared by canonical JSON, so values that round-trip
// through the wire format (e.g. int vs float64) still compare equal.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Name != other.Name {
		return false
	}
	a, err := json.Marshal(m.Args)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other.Args)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{name=%q channel=%q args=%v}", m.Name, m.Channel, m.Args)
}

// DecodeLine parses one line into a Message tagged with the given channel.
//
// A non-empty line that is not JSON at all yields a MessageJSONError message
// carrying the raw line (trailing newline stripped) — never an error.
// An empty line yields ErrEmptyLine. A line that is JSON but not a
// name+args envelope yields ErrInvalidMessage.
func DecodeLine(line string, channel string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrEmptyLine
	}

	var wire wireMessage
	if err := json.Unmarshal([]byte(line), &wire); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return &Message{
				Name:    MessageJSONError,
				Channel: channel,
				Args:    Args{ArgRawLine: line},
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if wire.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidMessage)
	}
	if len(wire.Args) == 0 {
		return nil, fmt.Errorf("%w: missing args", ErrInvalidMessage)
	}

	var args Args
	if err := json.Unmarshal(wire.Args, &args); err != nil {
		return nil, fmt.Errorf("%w: args is not an object: %v", ErrInvalidMessage, err)
	}
	if args == nil {
		args = Args{}
	}

	return &Message{Name: wire.Name, Channel: channel, Args: args}, nil
}

// MissingArgumentError is returned by typed Args accessors when the
// requested key is absent.
type MissingArgumentError struct {
	Key string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing argument %q", e.Key)
}

// TypeMismatchError is returned by typed Args accessors when the value
// is present but has the wrong type.
type TypeMismatchError struct {
	Key  string
	Want string
	Got  any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("argument %q: want %s, got %T", e.Key, e.Want, e.Got)
}

// Get returns the raw value for key.
func (a Args) Get(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// String returns the value for key as a string.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", &MissingArgumentError{Key: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeMismatchError{Key: key, Want: "string", Got: v}
	}
	return s, nil
}

// Int returns the value for key as an int. JSON numbers decode as float64,
// so integral floats are accepted.
func (a Args) Int(key string) (int, error) {
	v, ok := a[key]
	if !ok {
		return 0, &MissingArgumentError{Key: key}
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
		return 0, &TypeMismatchError{Key: key, Want: "int", Got: v}
	default:
		return 0, &TypeMismatchError{Key: key, Want: "int", Got: v}
	}
}

// Float returns the value for key as a float64.
func (a Args) Float(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, &MissingArgumentError{Key: key}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, &TypeMismatchError{Key: key, Want: "float", Got: v}
	}
}

// Bool returns the value for key as a bool.
func (a Args) Bool(key string) (bool, error) {
	v, ok := a[key]
	if !ok {
		return false, &MissingArgumentError{Key: key}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeMismatchError{Key: key, Want: "bool", Got: v}
	}
	return b, nil
}

// UnknownMessageError is surfaced by the dispatch loop when an inbound
// message has no registered handler. This is a protocol mismatch between
// the peers and should be treated as a programming error.
type UnknownMessageError struct {
	Name    string
	Channel string
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("no handler for message %q (channel %q)", e.Name, e.Channel)
}
