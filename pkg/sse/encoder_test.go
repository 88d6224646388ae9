package sse

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestSendWritesFramesInOrder(t *testing.T) {
	var rec flushRecorder
	enc := NewEncoder(&rec)

	if err := enc.Send("status", map[string]any{"message": "starting", "progress": 10}); err != nil {
		t.Fatalf("Send status: %v", err)
	}
	if err := enc.Send("outline_chunk", map[string]string{"chunk": "# Intro"}); err != nil {
		t.Fatalf("Send outline_chunk: %v", err)
	}

	out := rec.String()
	statusIdx := strings.Index(out, "event: status\n")
	chunkIdx := strings.Index(out, "event: outline_chunk\n")
	if statusIdx < 0 || chunkIdx < 0 || statusIdx > chunkIdx {
		t.Errorf("frames missing or out of order:\n%s", out)
	}
	if !strings.Contains(out, `data: {"chunk":"# Intro"}`) {
		t.Errorf("payload not serialized as expected:\n%s", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("frame not terminated by blank line:\n%q", out)
	}
}

func TestSendFlushesEveryFrame(t *testing.T) {
	var rec flushRecorder
	enc := NewEncoder(&rec)

	enc.Send("status", map[string]string{"message": "a"})
	enc.Send("status", map[string]string{"message": "b"})

	if rec.flushes != 2 {
		t.Errorf("flushes = %d, want 2", rec.flushes)
	}
}

func TestSendAfterCloseIsNoOp(t *testing.T) {
	var rec flushRecorder
	enc := NewEncoder(&rec)

	enc.Send("status", map[string]string{"message": "a"})
	before := rec.Len()

	enc.Close()
	enc.Close() // idempotent

	if err := enc.Send("error", map[string]string{"message": "late"}); err != nil {
		t.Errorf("Send after Close should be silent, got %v", err)
	}
	if rec.Len() != before {
		t.Errorf("bytes written after Close:\n%s", rec.String())
	}
	if !enc.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestWriteFailureClosesEncoder(t *testing.T) {
	enc := NewEncoder(failingWriter{})

	if err := enc.Send("status", map[string]string{"message": "a"}); err == nil {
		t.Fatal("expected write error")
	}
	if !enc.Closed() {
		t.Error("encoder should close itself on write failure")
	}
	if err := enc.Send("status", map[string]string{"message": "b"}); err != nil {
		t.Errorf("subsequent Send should be a no-op, got %v", err)
	}
}

func TestSendUnmarshalablePayload(t *testing.T) {
	var rec flushRecorder
	enc := NewEncoder(&rec)

	if err := enc.Send("status", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
	if enc.Closed() {
		t.Error("marshal failure must not close the stream")
	}
	if rec.Len() != 0 {
		t.Errorf("partial frame written: %q", rec.String())
	}
}
