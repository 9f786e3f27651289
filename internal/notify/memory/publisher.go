// Package memory implements an in-process notifier for development and
// testing.
package memory

import (
	"context"
	"sync"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// Message is one recorded notification.
type Message struct {
	UserID  string
	Kind    claims.NotificationKind
	Payload map[string]any
}

// Publisher records notifications instead of delivering them.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
}

// New constructs a Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Notify records the notification.
func (p *Publisher) Notify(_ context.Context, userID string, kind claims.NotificationKind, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

// Messages returns a copy of everything recorded so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
