package notify

import (
	"context"
	"sync"
)

// Message is one delivered notification.
type Message struct {
	Topic   string
	Payload []byte
}

// Hub is an in-process Publisher used when no Redis is configured (lite
// mode) and as a capture point in tests.
type Hub struct {
	mu   sync.Mutex
	subs []chan Message
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe returns a channel receiving every subsequent message. Slow
// consumers drop messages rather than block publishers.
func (h *Hub) Subscribe() <-chan Message {
	ch := make(chan Message, 64)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

func (h *Hub) Publish(_ context.Context, topic string, payload any) error {
	b, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	msg := Message{Topic: topic, Payload: b}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}
