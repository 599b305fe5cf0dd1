package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejoacosta74/paradex-api/internal/events"
)

// counterValue reads the current value of a counter via the metrics wire
// model.
func counterValue(t *testing.T, write func(*dto.Metric) error) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, write(m))
	return m.Counter.GetValue()
}

func gaugeValue(t *testing.T, write func(*dto.Metric) error) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, write(m))
	return m.Gauge.GetValue()
}

func waitForValue(t *testing.T, get func() float64, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if get() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for metric value %v, got %v", want, get())
}

func TestRecorder_CountsFrames(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Shutdown()

	recorder := NewRecorder(bus, prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder.Start(ctx)

	// Give the recorder time to subscribe before publishing.
	waitForSubscriber(t, bus, events.TopicFrame)

	bus.Publish(events.TopicFrame, events.Frame{Channel: "trades.BTC-USD-PERP"})
	bus.Publish(events.TopicFrame, events.Frame{Channel: "trades.BTC-USD-PERP"})
	bus.Publish(events.TopicFrame, events.Frame{Channel: "bbo.ETH-USD-PERP"})

	waitForValue(t, func() float64 {
		return counterValue(t, recorder.framesTotal.WithLabelValues("trades.BTC-USD-PERP").Write)
	}, 2)
	waitForValue(t, func() float64 {
		return counterValue(t, recorder.framesTotal.WithLabelValues("bbo.ETH-USD-PERP").Write)
	}, 1)
}

func TestRecorder_TracksStateAndRefresh(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Shutdown()

	recorder := NewRecorder(bus, prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder.Start(ctx)

	waitForSubscriber(t, bus, events.TopicStateChange)

	bus.Publish(events.TopicStateChange, events.StateChange{From: "connecting", To: "connected"})
	bus.Publish(events.TopicAuthRefresh, events.AuthRefresh{Outcome: "success"})
	bus.Publish(events.TopicAuthRejected, events.AuthRejected{Rejections: 1, Reason: "invalid bearer token"})
	bus.Publish(events.TopicReconnect, events.Reconnect{Attempt: 0})
	bus.Publish(events.TopicDrop, events.Drop{Channel: "trades.BTC-USD-PERP"})

	waitForValue(t, func() float64 {
		return gaugeValue(t, recorder.connState.Write)
	}, 3) // connected

	assert.Equal(t, float64(1), counterValue(t, recorder.authRefresh.WithLabelValues("success").Write))
	assert.Equal(t, float64(1), counterValue(t, recorder.authRejects.Write))
	assert.Equal(t, float64(1), counterValue(t, recorder.reconnects.Write))
	assert.Equal(t, float64(1), counterValue(t, recorder.dropsTotal.WithLabelValues("trades.BTC-USD-PERP").Write))
}

func waitForSubscriber(t *testing.T, bus *events.EventBus, topic events.Topic) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.TopicSubscriberCount(topic) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("recorder never subscribed to " + string(topic))
}
