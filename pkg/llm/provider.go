package llm

import (
	"context"
	"errors"
)

// ErrModelUnavailable signals the provider connection could not be
// established. ErrModelError signals the provider answered with a non-success
// response. Both are matched with errors.Is.
var (
	ErrModelUnavailable = errors.New("llm: model unavailable")
	ErrModelError       = errors.New("llm: model error")
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Option allows for optional parameters like Temperature, TopP, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithTopP(topP float64) Option {
	return func(o *Options) {
		o.TopP = topP
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// Stream yields content fragments as the model produces them.
//
// Next returns false on end-of-stream; the caller must then consult Err to
// distinguish clean completion (nil) from a provider failure that occurred
// after fragments were already yielded. Close releases the upstream
// connection and must be called on every exit path.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the full response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatStream sends a chat history and returns an incremental token stream
	ChatStream(ctx context.Context, history []Message, options ...Option) (Stream, error)
}

// ApplyOptions folds functional options over provider defaults.
func ApplyOptions(defaults Options, opts []Option) *Options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}
