package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-studynotes-be/pkg/llm"
)

func chatLine(content string, done bool) string {
	return fmt.Sprintf(`{"model":"test","message":{"role":"assistant","content":%q},"done":%v}`+"\n", content, done)
}

func TestChatStreamYieldsFragmentsUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatLine("Hello", false)))
		w.Write([]byte(chatLine(" world", false)))
		w.Write([]byte(chatLine("", true)))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test")
	stream, err := p.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer stream.Close()

	var got []string
	for stream.Next() {
		got = append(got, stream.Current())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream should end cleanly, got %v", err)
	}
	if strings.Join(got, "") != "Hello world" {
		t.Errorf("fragments = %v", got)
	}
}

func TestChatStreamSurfacesMidStreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatLine("partial", false)))
		w.Write([]byte(`{"error":"model crashed"}` + "\n"))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test")
	stream, err := p.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer stream.Close()

	if !stream.Next() {
		t.Fatal("expected first fragment before failure")
	}
	if stream.Next() {
		t.Fatal("expected termination after provider error")
	}
	if !errors.Is(stream.Err(), llm.ErrModelError) {
		t.Errorf("Err() = %v, want ErrModelError", stream.Err())
	}
}

func TestChatStreamTruncationIsNotCleanEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stream cut off before any done:true marker.
		w.Write([]byte(chatLine("partial", false)))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test")
	stream, err := p.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer stream.Close()

	for stream.Next() {
	}
	if !errors.Is(stream.Err(), llm.ErrModelError) {
		t.Errorf("truncated stream must yield terminal error, got %v", stream.Err())
	}
}

func TestChatStreamNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test")
	_, err := p.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, llm.ErrModelError) {
		t.Errorf("err = %v, want ErrModelError", err)
	}
}

func TestChatConnectionRefused(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1", "test")
	_, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, llm.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestChatMapsModelRole(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(chatLine("ok", true)))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test")
	_, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "model", Content: "prev"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(gotBody, `"role":"assistant"`) {
		t.Errorf("legacy model role not mapped to assistant: %s", gotBody)
	}
}
