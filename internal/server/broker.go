package server

import (
	"encoding/json"
	"sync"

	"github.com/campusquest/companion/internal/flow"
)

// Broker is an in-process pub/sub for flow snapshots, keyed by flow ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded views of the flow.
// The channel is closed when the flow is closed.
func (b *Broker) Subscribe(flowID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[flowID] == nil {
		b.subs[flowID] = make(map[chan []byte]struct{})
	}
	b.subs[flowID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the flow's subscribers.
func (b *Broker) Unsubscribe(flowID string, ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.subs[flowID][ch]; ok {
		delete(b.subs[flowID], ch)
		close(ch)
	}
	if len(b.subs[flowID]) == 0 {
		delete(b.subs, flowID)
	}
	b.mu.Unlock()
}

// Publish sends a view to all subscribers of the flow.
func (b *Broker) Publish(flowID string, v flow.View) {
	data, _ := json.Marshal(v)
	b.mu.RLock()
	for ch := range b.subs[flowID] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

// Close ends every subscription to the flow.
func (b *Broker) Close(flowID string) {
	b.mu.Lock()
	for ch := range b.subs[flowID] {
		close(ch)
	}
	delete(b.subs, flowID)
	b.mu.Unlock()
}
