// bus_test.go
package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_Subscribe(t *testing.T) {
	tests := []struct {
		name           string
		topic          Topic
		setupBus       func(*EventBus)
		validateState  func(*testing.T, *EventBus)
		validateOutput func(*testing.T, <-chan interface{})
	}{
		{
			name:  "subscribe to new topic",
			topic: TopicFrame,
			validateState: func(t *testing.T, b *EventBus) {
				assert.Equal(t, 1, len(b.subscribers))
				assert.Equal(t, 1, b.TopicSubscriberCount(TopicFrame))
			},
			validateOutput: func(t *testing.T, ch <-chan interface{}) {
				assert.NotNil(t, ch)
				assert.Equal(t, 100, cap(ch)) // Verify default buffer size
			},
		},
		{
			name:  "subscribe to existing topic",
			topic: TopicReconnect,
			setupBus: func(b *EventBus) {
				b.Subscribe(TopicReconnect)
			},
			validateState: func(t *testing.T, b *EventBus) {
				assert.Equal(t, 1, len(b.subscribers))
				assert.Equal(t, 2, b.TopicSubscriberCount(TopicReconnect))
			},
			validateOutput: func(t *testing.T, ch <-chan interface{}) {
				assert.NotNil(t, ch)
			},
		},
		{
			name:  "multiple subscriptions to same topic",
			topic: TopicStateChange,
			setupBus: func(b *EventBus) {
				for i := 0; i < 3; i++ {
					b.Subscribe(TopicStateChange)
				}
			},
			validateState: func(t *testing.T, b *EventBus) {
				assert.Equal(t, 1, len(b.subscribers))
				assert.Equal(t, 4, b.TopicSubscriberCount(TopicStateChange))
			},
			validateOutput: func(t *testing.T, ch <-chan interface{}) {
				assert.NotNil(t, ch)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewEventBus()
			if tt.setupBus != nil {
				tt.setupBus(bus)
			}

			ch := bus.Subscribe(tt.topic)

			if tt.validateState != nil {
				tt.validateState(t, bus)
			}
			if tt.validateOutput != nil {
				tt.validateOutput(t, ch)
			}
		})
	}
}

func TestEventBus_PublishDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	ch := bus.Subscribe(TopicStateChange)
	bus.Publish(TopicStateChange, StateChange{From: "connecting", To: "connected"})

	select {
	case event := <-ch:
		sc, ok := event.(StateChange)
		assert.True(t, ok)
		assert.Equal(t, "connected", sc.To)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestEventBus_PublishNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	// Must not panic or block.
	bus.Publish(TopicDrop, Drop{Channel: "trades.BTC-USD-PERP"})
}

func TestEventBus_PublishDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	ch := bus.Subscribe(TopicFrame)

	// Overfill the buffer; extra events are dropped, not blocked on.
	for i := 0; i < 150; i++ {
		bus.Publish(TopicFrame, Frame{Channel: "bbo.ETH-USD-PERP"})
	}

	assert.Equal(t, 100, len(ch))
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()

	ch := bus.Subscribe(TopicReconnect)
	assert.Equal(t, 1, bus.TopicSubscriberCount(TopicReconnect))

	bus.Unsubscribe(TopicReconnect, ch)
	assert.Equal(t, 0, bus.TopicSubscriberCount(TopicReconnect))

	// Channel is closed after unsubscribe.
	_, open := <-ch
	assert.False(t, open)
}

func TestEventBus_ConcurrentPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := bus.Subscribe(TopicFrame)
			bus.Unsubscribe(TopicFrame, ch)
		}()
		go func() {
			defer wg.Done()
			bus.Publish(TopicFrame, Frame{Channel: "trades.BTC-USD-PERP"})
		}()
	}
	wg.Wait()
}

func TestEventBus_Shutdown(t *testing.T) {
	bus := NewEventBus()

	ch1 := bus.Subscribe(TopicFrame)
	ch2 := bus.Subscribe(TopicDrop)

	bus.Shutdown()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)
	assert.Equal(t, 0, len(bus.subscribers))
}
