package engine

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// Redirector reroutes text the engine prints while a call is running.
// The returned function restores the previous destination.
type Redirector interface {
	Redirect(w io.Writer) (restore func())
}

// Output is captured printed text, bounded to a maximum length.
type Output struct {
	Text      string
	Truncated bool
	// Length is the untruncated length in characters.
	Length int
}

// Capture runs fn while the session's printed output is redirected into a
// bounded buffer. The previous destination is restored even if fn panics.
func Capture(r Redirector, limit int, fn func() error) (out Output, err error) {
	buf := newBoundedBuffer(limit)
	restore := r.Redirect(buf)
	defer func() {
		restore()
		out = buf.output()
	}()

	err = fn()
	return out, err
}

// Truncate cuts s to limit characters and appends a truncation marker.
func Truncate(s string, limit int) (string, bool) {
	n := utf8.RuneCountInString(s)
	if limit <= 0 || n <= limit {
		return s, false
	}
	return truncateRunes(s, limit, n), true
}

func truncateRunes(s string, limit, total int) string {
	cut := 0
	for i := 0; i < limit; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + truncationMarker(limit, total)
}

func truncationMarker(shown, total int) string {
	return fmt.Sprintf("\n... [output truncated: showing first %d of %d characters]", shown, total)
}

// boundedBuffer keeps a bounded prefix of everything written to it and
// counts the rest. It is written by the session's reader goroutine.
type boundedBuffer struct {
	mu      sync.Mutex
	limit   int
	hardCap int
	buf     strings.Builder
	runes   int
	dropped bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit, hardCap: 4*limit + 4096}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.runes += utf8.RuneCount(p)
	room := b.hardCap - b.buf.Len()
	switch {
	case room <= 0:
		b.dropped = true
	case len(p) > room:
		b.buf.Write(p[:room])
		b.dropped = true
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *boundedBuffer) output() Output {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := strings.TrimRight(b.buf.String(), "\r\n")
	if !b.dropped {
		t, truncated := Truncate(text, b.limit)
		return Output{Text: t, Truncated: truncated, Length: utf8.RuneCountInString(text)}
	}

	// Part of the stream was never stored; report the counted total.
	shown := b.limit
	if n := utf8.RuneCountInString(text); n < shown {
		shown = n
	}
	return Output{
		Text:      truncateRunes(text, shown, b.runes),
		Truncated: true,
		Length:    b.runes,
	}
}
