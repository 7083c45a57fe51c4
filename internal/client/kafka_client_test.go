package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"account-mapper/internal/config"
)

func TestNewKafkaProducer_RequiresBrokers(t *testing.T) {
	// KAFKA_BROKERS="," splits to an empty non-nil slice
	cfg := &config.Config{Kafka: config.KafkaConfig{
		Brokers:     []string{},
		EventsTopic: "account-events",
	}}

	producer, err := NewKafkaProducer(cfg, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, producer)
	assert.Contains(t, err.Error(), "no kafka brokers")
}

func TestKafkaHealthCheck_NoBrokers(t *testing.T) {
	producer := &KafkaProducer{
		config: &config.KafkaConfig{Brokers: []string{}},
		logger: zap.NewNop(),
	}

	err := producer.HealthCheck(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kafka brokers")
}
