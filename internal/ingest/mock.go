package ingest

import (
	"context"
	"errors"
	"sync"
)

// MockConsumer is a channel-backed consumer for tests. Nacked envelopes are
// re-queued to simulate redelivery.
type MockConsumer struct {
	mu        sync.Mutex
	closed    bool
	envelopes chan *Envelope
}

// NewMockConsumer creates a mock consumer pre-loaded with the given envelopes.
func NewMockConsumer(envelopes ...*Envelope) *MockConsumer {
	mc := &MockConsumer{
		envelopes: make(chan *Envelope, len(envelopes)+8),
	}
	for _, env := range envelopes {
		mc.envelopes <- env
	}
	return mc
}

// Push adds an envelope to the queue.
func (m *MockConsumer) Push(env *Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.envelopes <- env
}

func (m *MockConsumer) Consume(ctx context.Context) (*Envelope, func(success bool), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case env, ok := <-m.envelopes:
		if !ok {
			return nil, nil, errors.New("consumer closed")
		}
		ack := func(success bool) {
			if success {
				return
			}
			m.Push(env)
		}
		return env, ack, nil
	}
}

func (m *MockConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.envelopes)
	}
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
