package sseclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient() *Client {
	c := New()
	c.RetryDelay = 10 * time.Millisecond
	return c
}

func TestStreamDeliversFramesUntilFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: status\ndata: {\"progress\":10}\n\n"))
		w.Write([]byte("event: outline_chunk\ndata: {\"chunk\":\"# A\"}\n\n"))
		w.Write([]byte("event: final\ndata: {}\n\n"))
	}))
	defer srv.Close()

	var names []string
	err := newTestClient().Stream(context.Background(), srv.URL, "tok", nil, func(e Event) {
		names = append(names, e.Name)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []string{"status", "outline_chunk", "final"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
}

func TestStreamRetriesTransportDrop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// drop the connection mid-stream, before any terminal frame
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte("event: status\ndata: {\"progress\":10}\n\n"))
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.Write([]byte("event: final\ndata: {}\n\n"))
	}))
	defer srv.Close()

	finals := 0
	err := newTestClient().Stream(context.Background(), srv.URL, "tok", nil, func(e Event) {
		if e.Name == "final" {
			finals++
		}
	})
	if err != nil {
		t.Fatalf("Stream should succeed on retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if finals != 1 {
		t.Errorf("final frames = %d, want 1", finals)
	}
}

func TestStreamErrorFrameIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("event: error\ndata: {\"message\":\"model unavailable\"}\n\n"))
	}))
	defer srv.Close()

	err := newTestClient().Stream(context.Background(), srv.URL, "tok", nil, func(Event) {})
	if err != nil {
		t.Fatalf("a server-reported error frame ends the stream cleanly, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry after error frame)", got)
	}
}

func TestStreamGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// ends without a terminal frame every time
	}))
	defer srv.Close()

	err := newTestClient().Stream(context.Background(), srv.URL, "tok", nil, func(Event) {})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestStreamNon200IsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":404}`, http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient().Stream(context.Background(), srv.URL, "tok", nil, func(Event) {})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is not retriable)", got)
	}
}
