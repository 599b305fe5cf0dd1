package kafka

import "context"

// MessageSender sends one payload to a topic.
type MessageSender interface {
	Send(ctx context.Context, topic string, msg []byte) error
}

// PoolController controls the lifecycle of a producer pool.
type PoolController interface {
	Start() error
	Stop() error
}

// ProducerPool is a pool of Kafka producers usable from many goroutines.
type ProducerPool interface {
	MessageSender
	PoolController
}

// Producer is a single producer connection.
type Producer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}
