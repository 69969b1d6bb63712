package history

import "sync"

// Event is one incremental update pushed to subscribers as a request
// progresses: a node completing, a retry starting, the final result.
type Event struct {
	ExecutionID string      `json:"execution_id"`
	Kind        string      `json:"kind"` // "node_complete", "retrying", "done", "aborted"
	Payload     interface{} `json:"payload,omitempty"`
}

// subscriber is one subscriber's buffered channel. The most recent event
// per execution ID is kept in Publisher.last and replayed to a subscriber
// that joins mid-stream, so it sees that event instead of an empty channel.
type subscriber struct {
	ch chan Event
}

const subscriberBufferSize = 10

// Publisher is a hot multi-producer/multi-subscriber event stream: every
// Publish call fans out to all current subscribers without blocking the
// publisher on a slow consumer (a full subscriber channel drops the event
// rather than stalling the executor), except that the terminal event
// ("done"/"aborted") is guaranteed delivery via a blocking send, matching
// the requirement that a caller awaiting completion never misses it.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	last        map[string]Event // last event per execution ID, for replay
}

// NewPublisher creates an empty event publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[int]*subscriber),
		last:        make(map[string]Event),
	}
}

// Subscribe returns a channel of events and an unsubscribe function. If an
// event was already published for executionID, it is replayed immediately
// on the returned channel.
func (p *Publisher) Subscribe(executionID string) (<-chan Event, func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	sub := &subscriber{ch: make(chan Event, subscriberBufferSize)}
	p.subscribers[id] = sub
	replay, hasReplay := p.last[executionID]
	p.mu.Unlock()

	if hasReplay {
		sub.ch <- replay
	}

	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if s, ok := p.subscribers[id]; ok {
			close(s.ch)
			delete(p.subscribers, id)
		}
	}
	return sub.ch, unsubscribe
}

// Publish fans an event out to every current subscriber. Terminal events
// ("done", "aborted") block until delivered; all others drop silently if a
// subscriber's buffer is full rather than stalling the publisher.
func (p *Publisher) Publish(evt Event) {
	p.mu.Lock()
	p.last[evt.ExecutionID] = evt
	subs := make([]*subscriber, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	terminal := evt.Kind == "done" || evt.Kind == "aborted"
	for _, s := range subs {
		if terminal {
			s.ch <- evt
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}
