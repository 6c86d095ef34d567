// Package memory provides an in-process publisher for development and
// tests.
package memory

import (
	"context"
	"strconv"
	"sync"
)

// Message is one published event.
type Message struct {
	Topic   string
	Payload any
}

// Publisher records published events in memory. Safe for concurrent use.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
}

// New builds an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish implements listing.Publisher.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return strconv.Itoa(len(p.messages)), nil
}

// Messages returns everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
