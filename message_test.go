package pipelink

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Encode(t *testing.T) {
	t.Run("one newline-terminated line", func(t *testing.T) {
		msg := NewMessage("ping", Args{"msg": "hi"})

		data, err := msg.Encode()
		require.NoError(t, err)

		line := string(data)
		assert.True(t, strings.HasSuffix(line, "\n"))
		assert.Equal(t, 1, strings.Count(line, "\n"))
	})

	t.Run("nil args encode as empty object", func(t *testing.T) {
		msg := &Message{Name: "ping"}

		data, err := msg.Encode()
		require.NoError(t, err)
		assert.Contains(t, string(data), `"args":{}`)
	})

	t.Run("unencodable args fail", func(t *testing.T) {
		msg := NewMessage("bad", Args{"ch": make(chan int)})

		_, err := msg.Encode()
		assert.Error(t, err)
	})
}

func TestMessage_RoundTrip(t *testing.T) {
	t.Run("decode of encode equals original", func(t *testing.T) {
		original := NewMessage("ping", Args{
			"msg":    "hi",
			"count":  42,
			"ratio":  3.14,
			"flag":   true,
			"nested": map[string]any{"a": []any{1, 2}},
		})

		data, err := original.Encode()
		require.NoError(t, err)

		decoded, err := DecodeLine(string(data), ChannelOut)
		require.NoError(t, err)
		assert.Equal(t, ChannelOut, decoded.Channel)
		assert.True(t, decoded.Equal(original))
		assert.True(t, original.Equal(decoded))
	})

	t.Run("channel excluded from equality", func(t *testing.T) {
		a := &Message{Name: "ping", Channel: ChannelOut, Args: Args{"msg": "hi"}}
		b := &Message{Name: "ping", Channel: ChannelErr, Args: Args{"msg": "hi"}}

		assert.True(t, a.Equal(b))
	})

	t.Run("different names not equal", func(t *testing.T) {
		a := NewMessage("ping", Args{"msg": "hi"})
		b := NewMessage("pong", Args{"msg": "hi"})

		assert.False(t, a.Equal(b))
	})

	t.Run("different args not equal", func(t *testing.T) {
		a := NewMessage("ping", Args{"msg": "hi"})
		b := NewMessage("ping", Args{"msg": "bye"})

		assert.False(t, a.Equal(b))
	})
}

func TestMessage_DecodeLine(t *testing.T) {
	t.Run("malformed line becomes jsonerr", func(t *testing.T) {
		msg, err := DecodeLine("not json\n", ChannelOut)
		require.NoError(t, err)

		assert.Equal(t, MessageJSONError, msg.Name)
		assert.Equal(t, ChannelOut, msg.Channel)

		raw, err := msg.Args.String(ArgRawLine)
		require.NoError(t, err)
		assert.Equal(t, "not json", raw)
	})

	t.Run("empty line is ErrEmptyLine", func(t *testing.T) {
		_, err := DecodeLine("", ChannelOut)
		assert.ErrorIs(t, err, ErrEmptyLine)

		_, err = DecodeLine("\n", ChannelOut)
		assert.ErrorIs(t, err, ErrEmptyLine)
	})

	t.Run("valid JSON without envelope is invalid", func(t *testing.T) {
		for _, line := range []string{
			`5`,
			`"hello"`,
			`{"foo":1}`,
			`{"name":"x"}`,
			`{"args":{"a":1}}`,
			`{"name":"x","args":[1,2]}`,
			`{"name":"x","args":"nope"}`,
		} {
			_, err := DecodeLine(line+"\n", ChannelOut)
			assert.ErrorIs(t, err, ErrInvalidMessage, "line: %s", line)
		}
	})

	t.Run("null args decode to empty map", func(t *testing.T) {
		msg, err := DecodeLine(`{"name":"x","args":null}`+"\n", ChannelIn)
		require.NoError(t, err)
		assert.Equal(t, "x", msg.Name)
		assert.NotNil(t, msg.Args)
		assert.Empty(t, msg.Args)
	})

	t.Run("crlf tolerated", func(t *testing.T) {
		msg, err := DecodeLine(`{"name":"x","args":{"a":1}}`+"\r\n", ChannelIn)
		require.NoError(t, err)
		assert.Equal(t, "x", msg.Name)
	})
}

func TestArgs_Accessors(t *testing.T) {
	args := Args{
		"text":  "hello",
		"count": float64(7), // as it arrives off the wire
		"ratio": 2.5,
		"flag":  true,
	}

	t.Run("string", func(t *testing.T) {
		s, err := args.String("text")
		require.NoError(t, err)
		assert.Equal(t, "hello", s)
	})

	t.Run("int from integral float", func(t *testing.T) {
		n, err := args.Int("count")
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})

	t.Run("int from fractional float fails", func(t *testing.T) {
		_, err := args.Int("ratio")
		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "ratio", mismatch.Key)
	})

	t.Run("float", func(t *testing.T) {
		f, err := args.Float("ratio")
		require.NoError(t, err)
		assert.Equal(t, 2.5, f)
	})

	t.Run("bool", func(t *testing.T) {
		b, err := args.Bool("flag")
		require.NoError(t, err)
		assert.True(t, b)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := args.String("absent")
		var missing *MissingArgumentError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "absent", missing.Key)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := args.Bool("text")
		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "bool", mismatch.Want)
	})

	t.Run("raw get", func(t *testing.T) {
		v, ok := args.Get("text")
		assert.True(t, ok)
		assert.Equal(t, "hello", v)

		_, ok = args.Get("absent")
		assert.False(t, ok)
	})
}

func TestUnknownMessageError(t *testing.T) {
	err := error(&UnknownMessageError{Name: "mystery", Channel: ChannelOut})

	var unknown *UnknownMessageError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, err.Error(), "mystery")
	assert.Contains(t, err.Error(), "out")
}
