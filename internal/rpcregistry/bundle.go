// Package rpcregistry merges RPC declarations from one or more bundles into
// a single lookup table the RPC router dispatches against, and normalizes
// every reachable message type's JSON field aliasing exactly once.
// Grounded on spec.md §4.7; the teacher has no direct analogue (its routes
// are registered directly on *gin.Engine), so this package's shape follows
// the spec's own RpcBundle/ActionEntry/StreamEntry vocabulary, implemented
// with Go reflection the way the corpus's JSON-heavy services (gin's own
// binding package) walk struct tags.
package rpcregistry

import (
	"context"
	"reflect"

	"vention.dev/cellrt/internal/broker"
)

// ActionFunc is the handler bound to an ActionEntry: it receives a decoded
// input value (nil if InputType is nil) and returns an output value to be
// serialized back to the caller.
type ActionFunc func(ctx context.Context, input any) (any, error)

// ActionEntry is one unary RPC: a name, its handler, and the (possibly nil)
// input/output types used for alias normalization and decoding.
type ActionEntry struct {
	Name       string
	Func       ActionFunc
	InputType  reflect.Type
	OutputType reflect.Type
}

// StreamEntry is one server-streaming RPC: a name bound to a broker topic,
// the payload type published on it, and the topic's distribution
// configuration (duplicated here so a client can discover it without a
// separate introspection call).
type StreamEntry struct {
	Name         string
	Topic        *broker.Topic
	PayloadType  reflect.Type
	Replay       bool
	QueueMaxSize int
	Policy       broker.Policy
}

// RpcBundle is a named group of actions and streams, the unit Registry.Merge
// accepts.
type RpcBundle struct {
	Actions []ActionEntry
	Streams []StreamEntry
}
