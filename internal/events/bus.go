package events

import (
	"sync"
)

// Topic names one category of session lifecycle event.
type Topic string

const (
	// TopicStateChange carries StateChange events from the connection manager.
	TopicStateChange Topic = "state_change"
	// TopicFrame carries Frame events, one per dispatched data frame.
	TopicFrame Topic = "frame"
	// TopicReconnect carries Reconnect events when a connection is lost.
	TopicReconnect Topic = "reconnect"
	// TopicAuthRefresh carries AuthRefresh events from the auth session.
	TopicAuthRefresh Topic = "auth_refresh"
	// TopicAuthRejected carries AuthRejected events, one per server-side
	// rejection of the session token.
	TopicAuthRejected Topic = "auth_rejected"
	// TopicDrop carries Drop events when a dispatch queue overflows.
	TopicDrop Topic = "drop"
)

// StateChange reports a connection state transition.
type StateChange struct {
	From string
	To   string
}

// Frame reports one dispatched data frame.
type Frame struct {
	Channel string
}

// Reconnect reports one reconnect cycle and its attempt number.
type Reconnect struct {
	Attempt int
}

// AuthRefresh reports the outcome of a token refresh.
type AuthRefresh struct {
	Outcome string // "success" or "failure"
}

// AuthRejected reports one server rejection of the session token and the
// consecutive rejection count so far.
type AuthRejected struct {
	Rejections int
	Reason     string
}

// Drop reports a frame dropped because a subscriber queue was full.
type Drop struct {
	Channel string
}

// Bus defines the interface for event bus operations.
type Bus interface {
	// Publish sends an event to all subscribers of the specified topic.
	Publish(topic Topic, event interface{})
	// Subscribe returns a channel that receives events for the specified topic.
	Subscribe(topic Topic) <-chan interface{}
	// Unsubscribe removes a subscriber channel from the specified topic.
	Unsubscribe(topic Topic, ch <-chan interface{})
}

// EventBus implements the Bus interface providing a concurrent-safe
// publish-subscribe message bus.
type EventBus struct {
	// subscribers maps topics to a set of subscriber channels
	subscribers map[Topic]map[chan interface{}]struct{}

	// subscribersMu protects concurrent access to the subscribers map
	subscribersMu sync.RWMutex

	// channelBufferSize determines the buffer size for new subscriber channels
	channelBufferSize int
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers:       make(map[Topic]map[chan interface{}]struct{}),
		channelBufferSize: 100,
	}
}

// Publish sends an event to all subscribers of the specified topic.
// It is concurrent-safe and non-blocking: if a subscriber's channel is
// full, the event is dropped for that subscriber.
func (b *EventBus) Publish(topic Topic, event interface{}) {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	subscribers, exists := b.subscribers[topic]
	if !exists {
		return
	}

	for subscriberCh := range subscribers {
		select {
		case subscriberCh <- event:
		default:
			// Channel full, drop event for this subscriber
		}
	}
}

// Subscribe creates a new subscription to the specified topic. The returned
// channel is buffered; the subscriber should call Unsubscribe when done to
// prevent resource leaks.
func (b *EventBus) Subscribe(topic Topic) <-chan interface{} {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	ch := make(chan interface{}, b.channelBufferSize)

	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan interface{}]struct{})
	}
	b.subscribers[topic][ch] = struct{}{}

	return ch
}

// Unsubscribe removes a subscriber from the specified topic. It is
// concurrent-safe and idempotent.
func (b *EventBus) Unsubscribe(topic Topic, ch <-chan interface{}) {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	subscribers, exists := b.subscribers[topic]
	if !exists {
		return
	}

	for subCh := range subscribers {
		if ch == subCh {
			delete(subscribers, subCh)
			close(subCh)
			break
		}
	}

	if len(subscribers) == 0 {
		delete(b.subscribers, topic)
	}
}

// Shutdown closes all subscriber channels and cleans up resources.
func (b *EventBus) Shutdown() {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	for topic, subscribers := range b.subscribers {
		for ch := range subscribers {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}

// TopicSubscriberCount returns the number of subscribers for a topic.
func (b *EventBus) TopicSubscriberCount(topic Topic) int {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	return len(b.subscribers[topic])
}
