package engine

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinkRecorder implements Redirector and records the active sink.
type sinkRecorder struct {
	sink io.Writer
}

func (r *sinkRecorder) Redirect(w io.Writer) func() {
	prev := r.sink
	r.sink = w
	return func() { r.sink = prev }
}

func (r *sinkRecorder) print(s string) {
	_, _ = io.WriteString(r.sink, s)
}

func TestCapture(t *testing.T) {
	t.Run("VerbatimUnderLimit", func(t *testing.T) {
		r := &sinkRecorder{}
		out, err := Capture(r, 20, func() error {
			r.print("hello\nworld\n")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hello\nworld", out.Text)
		assert.False(t, out.Truncated)
		assert.Equal(t, 11, out.Length)
	})

	t.Run("ExactlyAtLimit", func(t *testing.T) {
		r := &sinkRecorder{}
		out, err := Capture(r, 5, func() error {
			r.print("abcde")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "abcde", out.Text)
		assert.False(t, out.Truncated)
	})

	t.Run("TruncatedOverLimit", func(t *testing.T) {
		r := &sinkRecorder{}
		out, err := Capture(r, 5, func() error {
			r.print("abcdefghij")
			return nil
		})
		require.NoError(t, err)
		assert.True(t, out.Truncated)
		assert.True(t, strings.HasPrefix(out.Text, "abcde\n... [output truncated"))
		assert.Contains(t, out.Text, "showing first 5 of 10 characters")
		assert.Equal(t, 10, out.Length)
	})

	t.Run("CountsRunesNotBytes", func(t *testing.T) {
		r := &sinkRecorder{}
		out, err := Capture(r, 3, func() error {
			r.print("αβγ")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "αβγ", out.Text)
		assert.False(t, out.Truncated)
	})

	t.Run("HardCapDropsTail", func(t *testing.T) {
		r := &sinkRecorder{}
		big := strings.Repeat("x", 10000)
		out, err := Capture(r, 10, func() error {
			r.print(big)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, out.Truncated)
		assert.Equal(t, 10000, out.Length)
		assert.Contains(t, out.Text, "showing first 10 of 10000 characters")
	})

	t.Run("RestoresSinkOnError", func(t *testing.T) {
		var original bytes.Buffer
		r := &sinkRecorder{sink: &original}
		boom := errors.New("boom")

		out, err := Capture(r, 100, func() error {
			r.print("partial")
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, "partial", out.Text)
		assert.Same(t, &original, r.sink)
	})

	t.Run("RestoresSinkOnPanic", func(t *testing.T) {
		var original bytes.Buffer
		r := &sinkRecorder{sink: &original}

		assert.Panics(t, func() {
			_, _ = Capture(r, 100, func() error {
				panic("engine exploded")
			})
		})
		assert.Same(t, &original, r.sink)
	})
}

func TestTruncate(t *testing.T) {
	s, truncated := Truncate("short", 10)
	assert.Equal(t, "short", s)
	assert.False(t, truncated)

	s, truncated = Truncate("0123456789abc", 10)
	assert.True(t, truncated)
	assert.True(t, strings.HasPrefix(s, "0123456789\n... [output truncated"))
}
