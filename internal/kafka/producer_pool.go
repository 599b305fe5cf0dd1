package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	Headers map[string]string
}

// ProducerConfig holds configuration for the producer pool.
type ProducerConfig struct {
	BrokerList []string // Kafka brokers, e.g. ["localhost:9092"]
	PoolSize   int      // number of producers in the pool
}

// producerPool manages a fixed set of producers behind a channel. A Send
// borrows a producer, publishes, and returns it; concurrency is bounded by
// PoolSize without any explicit locking around the producers themselves.
type producerPool struct {
	producers chan Producer
	config    ProducerConfig
	logger    *logrus.Entry
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	mu        sync.RWMutex
}

// NewProducerPool creates a new pool of Kafka producers.
func NewProducerPool(config ProducerConfig) (*producerPool, error) {
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be greater than 0")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &producerPool{
		producers: make(chan Producer, config.PoolSize),
		config:    config,
		logger:    logrus.WithField("component", "kafka_producer_pool"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start connects all producers. Fails fast and cleans up if any connection
// cannot be established.
func (p *producerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("producer pool already started")
	}

	for i := 0; i < p.config.PoolSize; i++ {
		producer, err := newSaramaProducer(p.config.BrokerList)
		if err != nil {
			p.drain()
			return fmt.Errorf("failed to create producer %d: %w", i, err)
		}
		p.producers <- producer
	}

	p.started = true
	p.logger.Info("Producer pool started")
	return nil
}

// Stop gracefully shuts down the producer pool.
func (p *producerPool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return fmt.Errorf("producer pool not started")
	}

	p.logger.Info("Stopping producer pool")
	p.cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.drain()
	}()

	select {
	case err := <-done:
		p.started = false
		if err != nil {
			return fmt.Errorf("errors closing producers: %w", err)
		}
		p.logger.Info("Producer pool stopped")
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while stopping producer pool")
	}
}

// drain closes every producer in the pool, waiting briefly for borrowed
// producers to be returned by in-flight sends.
func (p *producerPool) drain() error {
	var closeErr error
	for i := 0; i < cap(p.producers); i++ {
		select {
		case producer := <-p.producers:
			if err := producer.Close(); err != nil {
				p.logger.WithError(err).Error("Failed to close producer")
				closeErr = err
			}
		case <-time.After(time.Second):
			p.logger.Warn("Timeout waiting for producer to be returned")
			return closeErr
		}
	}
	return closeErr
}

// Send publishes one payload using an available producer from the pool.
// Safe for concurrent use; blocks until a producer is free or a context
// is cancelled.
func (p *producerPool) Send(ctx context.Context, topic string, rawMsg []byte) error {
	msg := Message{
		Topic:   topic,
		Payload: rawMsg,
	}

	select {
	case producer := <-p.producers:
		defer func() {
			select {
			case <-p.ctx.Done():
				producer.Close()
			default:
				p.producers <- producer
			}
		}()

		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := producer.Send(sendCtx, msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil

	case <-ctx.Done():
		return fmt.Errorf("operation cancelled by caller: %w", ctx.Err())

	case <-p.ctx.Done():
		return fmt.Errorf("producer pool is shutting down")
	}
}
