package sseclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Event is one decoded server-sent-event frame.
type Event struct {
	Name string
	Data json.RawMessage
}

// Client consumes a server-sent-event endpoint with the bounded
// retry-with-fixed-delay policy the generation API expects from its callers:
// a transport-level failure restarts the whole request from scratch, while a
// stream that terminated with an explicit `final` or `error` frame is done
// and never retried.
type Client struct {
	HTTPClient  *http.Client
	MaxAttempts uint
	RetryDelay  time.Duration
}

func New() *Client {
	return &Client{
		HTTPClient:  &http.Client{}, // No timeout; the server caps the stream
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
	}
}

// Stream POSTs body to url and invokes onEvent for every frame received.
// onEvent may be called again after a retry with frames already seen; callers
// needing exactly-once must dedupe themselves.
func (c *Client) Stream(ctx context.Context, url, token string, body any, onEvent func(Event)) error {
	operation := func() (struct{}, error) {
		err := c.streamOnce(ctx, url, token, body, onEvent)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.RetryDelay)),
		backoff.WithMaxTries(c.MaxAttempts),
	)
	return err
}

func (c *Client) streamOnce(ctx context.Context, url, token string, body any, onEvent func(Event)) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err // transport failure: retriable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(resp.Body)
		// Rejected before streaming began (auth/not-found); retrying cannot help.
		return backoff.Permanent(fmt.Errorf("request rejected: status %d, body: %s", resp.StatusCode, slurp))
	}

	var ev Event
	terminal := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			if ev.Name != "" {
				onEvent(ev)
				if ev.Name == "final" || ev.Name == "error" {
					terminal = true
				}
				ev = Event{}
			}
		}
	}

	if terminal {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return err // dropped mid-stream: retriable
	}
	return fmt.Errorf("stream ended without a terminal frame")
}
