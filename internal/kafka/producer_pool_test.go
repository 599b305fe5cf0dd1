package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerPool_Validation(t *testing.T) {
	_, err := NewProducerPool(ProducerConfig{BrokerList: []string{"localhost:9092"}, PoolSize: 0})
	assert.Error(t, err)

	pool, err := NewProducerPool(ProducerConfig{BrokerList: []string{"localhost:9092"}, PoolSize: 3})
	require.NoError(t, err)
	assert.NotNil(t, pool)
}

func TestProducerPool_StopBeforeStart(t *testing.T) {
	pool, err := NewProducerPool(ProducerConfig{BrokerList: []string{"localhost:9092"}, PoolSize: 1})
	require.NoError(t, err)

	assert.Error(t, pool.Stop())
}
