package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// saramaProducer implements Producer using Sarama's SyncProducer.
// RequiredAcks=WaitForAll: a send does not succeed until all replicas have
// the message, trading latency for durability of market data.
type saramaProducer struct {
	producer sarama.SyncProducer
}

func newSaramaProducer(brokers []string) (Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}

	return &saramaProducer{producer: producer}, nil
}

// Send publishes one message. The blocking SendMessage call runs in its own
// goroutine so the caller's context can cancel the wait.
func (p *saramaProducer) Send(ctx context.Context, msg Message) error {
	saramaMsg := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Payload),
	}
	if msg.Key != "" {
		saramaMsg.Key = sarama.StringEncoder(msg.Key)
	}
	if len(msg.Headers) > 0 {
		var headers []sarama.RecordHeader
		for k, v := range msg.Headers {
			headers = append(headers, sarama.RecordHeader{
				Key:   []byte(k),
				Value: []byte(v),
			})
		}
		saramaMsg.Headers = headers
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(saramaMsg)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *saramaProducer) Close() error {
	return p.producer.Close()
}
