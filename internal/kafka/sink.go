package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// Sink publishes stream frames to Kafka, one topic per channel. It is the
// bridge between subscription callbacks and the producer pool: Callback
// returns a closure suitable for Manager.Subscribe.
type Sink struct {
	sender      MessageSender
	topicPrefix string
	logger      *logrus.Entry
}

func NewSink(sender MessageSender, topicPrefix string) *Sink {
	return &Sink{
		sender:      sender,
		topicPrefix: topicPrefix,
		logger:      logrus.WithField("component", "kafka_sink"),
	}
}

// Callback returns a subscription callback that publishes every frame for
// (channel, market) to the channel's topic.
func (s *Sink) Callback(ctx context.Context) func(channel paradex.Channel, market string, data json.RawMessage) {
	return func(channel paradex.Channel, market string, data json.RawMessage) {
		topic := s.Topic(channel)
		if err := s.sender.Send(ctx, topic, data); err != nil {
			s.logger.WithError(err).Warnf("Failed to publish frame for %s to %s", channel, topic)
		}
	}
}

// Topic maps a channel to its Kafka topic. Dots in channel names are not
// universally topic-safe, so they become underscores.
func (s *Sink) Topic(channel paradex.Channel) string {
	name := strings.ReplaceAll(string(channel), ".", "_")
	if s.topicPrefix == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", s.topicPrefix, name)
}
