package broker

import "vention.dev/cellrt/internal/metrics"

// Subscription is the handle returned by Topic.Subscribe. Callers receive
// published values off C and must call Unsubscribe when done to let the
// distributor reclaim the slot — mirroring the teacher's
// register/unregister channel pair in internal/websocket/hub.go, but typed
// and scoped to a single topic rather than a whole Hub.
type Subscription struct {
	C      <-chan Message
	id      uint64
	topic   *Topic
}

// Unsubscribe removes this subscription from its topic. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.topic.unsubscribe(s.id)
}

// subscriber is the distributor's private bookkeeping for one subscription:
// an owned, buffered channel and the policy governing what happens when it
// fills up.
type subscriber struct {
	id        uint64
	ch        chan Message
	policy    Policy
	topicName string
}

// deliver attempts to hand msg to this subscriber per its policy. It never
// blocks the caller for PolicyLatest (on a full queue the oldest pending
// item is dropped to make room); for PolicyFIFO the caller (the topic's single
// distributor goroutine) blocks until there is room, so a FIFO subscriber
// can throttle its topic — an explicit, accepted tradeoff over ever
// silently dropping a FIFO message.
func (s *subscriber) deliver(msg Message) {
	if s.policy == PolicyLatest {
		for {
			select {
			case s.ch <- msg:
				return
			default:
			}
			select {
			case <-s.ch:
				metrics.Get().BrokerDroppedTotal.WithLabelValues(s.topicName).Inc()
			default:
			}
		}
	}
	s.ch <- msg
}
