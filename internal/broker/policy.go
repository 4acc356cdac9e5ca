package broker

// Policy controls how a topic's distributor behaves when a subscriber's
// queue is full, and what a new subscriber is replayed on join.
type Policy string

const (
	// PolicyFIFO never drops a published message for a slow subscriber:
	// the distributor blocks until the subscriber's queue has room. Use
	// for messages where losing an intermediate value is unacceptable
	// (e.g. discrete transition events).
	PolicyFIFO Policy = "fifo"

	// PolicyLatest favors the most recent published values per
	// subscriber: on a full queue the oldest pending item is dropped to
	// make room for the new one, so a slow subscriber never sees more than
	// a bounded lag and never blocks the publisher. Use for high-frequency samples
	// (e.g. continuous sensor readings) where only the newest value
	// matters.
	PolicyLatest Policy = "latest"
)

// Valid reports whether p is one of the two recognized policies.
func (p Policy) Valid() bool {
	return p == PolicyFIFO || p == PolicyLatest
}
