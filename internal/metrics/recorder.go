package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/alejoacosta74/paradex-api/internal/conn"
	"github.com/alejoacosta74/paradex-api/internal/events"
)

// Recorder subscribes to session lifecycle events and translates them into
// Prometheus metrics. It owns no metric sources itself; everything arrives
// over the event bus so the connection and auth code stay free of metrics
// plumbing.
type Recorder struct {
	connState    prometheus.Gauge
	framesTotal  *prometheus.CounterVec
	dropsTotal   *prometheus.CounterVec
	reconnects   prometheus.Counter
	authRefresh  *prometheus.CounterVec
	authRejects  prometheus.Counter
	stateChanges *prometheus.CounterVec

	eventBus events.Bus
	logger   *logrus.Entry
	done     chan struct{}
}

// NewRecorder registers the session metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewRecorder(eventBus events.Bus, reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		eventBus: eventBus,
		logger:   logrus.WithField("component", "metrics_recorder"),
		done:     make(chan struct{}),
	}

	factory := promauto.With(reg)

	r.connState = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "paradex",
		Subsystem: "ws",
		Name:      "connection_state",
		Help:      "Current connection state (0=disconnected 1=connecting 2=authenticating 3=connected 4=reconnecting 5=closed)",
	})

	r.framesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paradex",
		Subsystem: "ws",
		Name:      "frames_total",
		Help:      "Data frames delivered to subscribers, by channel",
	}, []string{"channel"})

	r.dropsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paradex",
		Subsystem: "ws",
		Name:      "dropped_frames_total",
		Help:      "Data frames dropped because a subscriber queue was full, by channel",
	}, []string{"channel"})

	r.reconnects = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "paradex",
		Subsystem: "ws",
		Name:      "reconnects_total",
		Help:      "Reconnect cycles entered after a lost connection",
	})

	r.authRefresh = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paradex",
		Subsystem: "auth",
		Name:      "refresh_total",
		Help:      "Bearer token refresh attempts, by outcome",
	}, []string{"outcome"})

	r.authRejects = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "paradex",
		Subsystem: "auth",
		Name:      "rejected_total",
		Help:      "Bearer tokens rejected by the streaming endpoint",
	})

	r.stateChanges = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paradex",
		Subsystem: "ws",
		Name:      "state_changes_total",
		Help:      "Connection state transitions, by target state",
	}, []string{"to"})

	r.logger.Debug("Metrics recorder initialized")
	return r
}

// Start subscribes to the event bus and records until ctx is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	go r.record(ctx)
}

func (r *Recorder) record(ctx context.Context) {
	defer close(r.done)

	states := r.eventBus.Subscribe(events.TopicStateChange)
	frames := r.eventBus.Subscribe(events.TopicFrame)
	drops := r.eventBus.Subscribe(events.TopicDrop)
	reconnects := r.eventBus.Subscribe(events.TopicReconnect)
	refreshes := r.eventBus.Subscribe(events.TopicAuthRefresh)
	rejections := r.eventBus.Subscribe(events.TopicAuthRejected)

	r.logger.Debug("Subscribed to event topics")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Context cancelled, stopping metrics recorder")
			r.eventBus.Unsubscribe(events.TopicStateChange, states)
			r.eventBus.Unsubscribe(events.TopicFrame, frames)
			r.eventBus.Unsubscribe(events.TopicDrop, drops)
			r.eventBus.Unsubscribe(events.TopicReconnect, reconnects)
			r.eventBus.Unsubscribe(events.TopicAuthRefresh, refreshes)
			r.eventBus.Unsubscribe(events.TopicAuthRejected, rejections)
			return
		case event, ok := <-states:
			if !ok {
				return
			}
			if sc, ok := event.(events.StateChange); ok {
				r.connState.Set(float64(stateValue(sc.To)))
				r.stateChanges.WithLabelValues(sc.To).Inc()
			}
		case event, ok := <-frames:
			if !ok {
				return
			}
			if f, ok := event.(events.Frame); ok {
				r.framesTotal.WithLabelValues(f.Channel).Inc()
			}
		case event, ok := <-drops:
			if !ok {
				return
			}
			if d, ok := event.(events.Drop); ok {
				r.dropsTotal.WithLabelValues(d.Channel).Inc()
			}
		case _, ok := <-reconnects:
			if !ok {
				return
			}
			r.reconnects.Inc()
		case event, ok := <-refreshes:
			if !ok {
				return
			}
			if a, ok := event.(events.AuthRefresh); ok {
				r.authRefresh.WithLabelValues(a.Outcome).Inc()
			}
		case _, ok := <-rejections:
			if !ok {
				return
			}
			r.authRejects.Inc()
		}
	}
}

func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// stateValue maps state names to stable gauge values.
func stateValue(name string) int {
	for s := conn.Disconnected; s <= conn.Closed; s++ {
		if s.String() == name {
			return int(s)
		}
	}
	return -1
}
