package broker

import (
	"sync"
	"sync/atomic"

	"vention.dev/cellrt/internal/metrics"
)

// Message is one published value on a topic.
type Message struct {
	Topic     string
	Payload   any
	Timestamp int64 // unix nanoseconds
}

// TopicConfig configures one topic's distribution behavior, set at
// CreateTopic time (internal/config's per-stream defaults feed this).
type TopicConfig struct {
	// QueueMaxSize bounds each subscriber's buffered channel. Zero means
	// a sensible default (16) is used.
	QueueMaxSize int

	// Policy governs backpressure handling; defaults to PolicyLatest.
	Policy Policy

	// Replay, if true, immediately delivers the last published message
	// (if any) to a new subscriber before it receives anything else —
	// spec.md's `last_value` replay-on-subscribe behavior.
	Replay bool
}

// Topic is a single named pub/sub channel: one owning distributor goroutine
// serializes publish/subscribe/unsubscribe the same way the teacher's Hub
// serializes register/unregister/broadcast through its run() select loop,
// scoped here to one topic instead of one hub-wide set of rooms.
type Topic struct {
	name   string
	cfg    TopicConfig

	publishCh     chan Message
	subscribeCh   chan *subscriber
	unsubscribeCh chan uint64
	stopCh        chan struct{}
	stopOnce      sync.Once

	nextID int64

	lastMu sync.Mutex
	last   Message
	hasLast bool
}

func newTopic(name string, cfg TopicConfig) *Topic {
	if cfg.QueueMaxSize <= 0 {
		// Library-neutral fallback for a caller that builds a Topic
		// directly without going through internal/config, which always
		// supplies its own application-level `queue_maxsize` default (1,
		// per spec.md §6) explicitly — the two defaults are independent by
		// design and never silently collide.
		cfg.QueueMaxSize = 16
	}
	if !cfg.Policy.Valid() {
		cfg.Policy = PolicyLatest
	}
	t := &Topic{
		name:          name,
		cfg:           cfg,
		publishCh:     make(chan Message, 64),
		subscribeCh:   make(chan *subscriber),
		unsubscribeCh: make(chan uint64),
		stopCh:        make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Topic) run() {
	subs := make(map[uint64]*subscriber)
	var last Message
	var hasLast bool
	for {
		select {
		case msg := <-t.publishCh:
			last, hasLast = msg, true
			t.lastMu.Lock()
			t.last, t.hasLast = msg, true
			t.lastMu.Unlock()
			metrics.Get().BrokerMessagesTotal.WithLabelValues(t.name).Inc()
			for _, s := range subs {
				s.deliver(msg)
				metrics.Get().BrokerQueueDepth.WithLabelValues(t.name).Set(float64(len(s.ch)))
			}
		case s := <-t.subscribeCh:
			subs[s.id] = s
			// Replay happens here, serialized through the same distributor
			// goroutine that delivers ordinary publishes, so a subscriber
			// can never be handed a stale last_value concurrently with (or
			// after) a newer publish it should have observed instead —
			// spec.md §5's "new subscriber... never receives a torn value"
			// ordering guarantee.
			if t.cfg.Replay && hasLast {
				s.deliver(last)
			}
		case id := <-t.unsubscribeCh:
			if s, ok := subs[id]; ok {
				close(s.ch)
				delete(subs, id)
			}
		case <-t.stopCh:
			for _, s := range subs {
				close(s.ch)
			}
			return
		}
	}
}

// Publish enqueues msg for distribution. It never blocks the publisher
// beyond the topic's own 64-slot publish buffer; a caller that floods a
// topic will see Publish briefly block rather than data get silently lost
// upstream of the per-subscriber policy.
func (t *Topic) Publish(payload any, timestampNanos int64) {
	select {
	case t.publishCh <- Message{Topic: t.name, Payload: payload, Timestamp: timestampNanos}:
	case <-t.stopCh:
	}
}

// Subscribe registers a new subscription. If the topic's Replay is enabled
// and a value has already been published, the distributor delivers that
// last value to the new subscriber before anything else, ordered against
// concurrent publishes by running entirely on the distributor goroutine
// (see run()'s subscribeCh case) rather than here on the caller's.
func (t *Topic) Subscribe() *Subscription {
	id := uint64(atomic.AddInt64(&t.nextID, 1))
	s := &subscriber{id: id, ch: make(chan Message, t.cfg.QueueMaxSize), policy: t.cfg.Policy, topicName: t.name}

	select {
	case t.subscribeCh <- s:
	case <-t.stopCh:
		close(s.ch)
	}

	return &Subscription{C: s.ch, id: id, topic: t}
}

func (t *Topic) unsubscribe(id uint64) {
	select {
	case t.unsubscribeCh <- id:
	case <-t.stopCh:
	}
}

// Close shuts the topic down, closing every subscriber channel. Idempotent.
func (t *Topic) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Name returns the topic's name.
func (t *Topic) Name() string { return t.name }
