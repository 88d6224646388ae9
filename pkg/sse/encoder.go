package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Encoder writes server-sent-event frames (`event: <name>\ndata: <json>\n\n`)
// to an underlying writer. Frames are written whole and flushed before Send
// returns, so a client observes them in call order and never interleaved.
//
// Send after Close is a silent no-op: the producer cannot always know whether
// a downstream cancellation already tore the stream down.
type Encoder struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Send serializes payload and writes one frame. A write or flush failure
// (typically a disconnected client) closes the encoder.
func (e *Encoder) Send(event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	if _, err := io.WriteString(e.w, frame); err != nil {
		e.closed = true
		return err
	}
	if err := e.flush(); err != nil {
		e.closed = true
		return err
	}
	return nil
}

// Close ends the stream. Safe to call more than once.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.flush()
}

// Closed reports whether the encoder no longer accepts frames.
func (e *Encoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Encoder) flush() error {
	if f, ok := e.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
