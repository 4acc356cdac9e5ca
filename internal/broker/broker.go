// Package broker implements the topic-based publish/subscribe fan-out used
// to stream FSM state changes and other application events to RPC
// streaming clients. Grounded on the teacher's internal/websocket.Hub,
// generalized from "rooms keyed by collaboration session" to "topics keyed
// by stream name," and from a WebSocket-specific Client to a
// transport-agnostic Subscription consumed by internal/rpcrouter.
package broker

import "sync"

// Broker owns a set of named topics, created on first use or explicitly.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]*Topic
}

// New returns an empty Broker.
func New() *Broker {
	return &Broker{topics: make(map[string]*Topic)}
}

// CreateTopic creates (or returns the existing) topic under name with cfg.
// Configuration is fixed at first creation; a later call with a different
// cfg for an existing topic is ignored, matching the finalize-time,
// declare-once nature of the rest of the app's configuration.
func (b *Broker) CreateTopic(name string, cfg TopicConfig) *Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t
	}
	t := newTopic(name, cfg)
	b.topics[name] = t
	return t
}

// Topic returns the named topic, or nil if it was never created.
func (b *Broker) Topic(name string) *Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.topics[name]
}

// Publish is a convenience that publishes to an existing topic by name; a
// publish to a nonexistent topic is silently dropped (mirrors the
// teacher's broadcastToRoom on an empty room).
func (b *Broker) Publish(name string, payload any, timestampNanos int64) {
	if t := b.Topic(name); t != nil {
		t.Publish(payload, timestampNanos)
	}
}

// Topics returns the names of every topic currently registered.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.topics))
	for name := range b.topics {
		out = append(out, name)
	}
	return out
}

// Close shuts down every topic the broker owns.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		t.Close()
	}
}
