//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"verigate/internal/platform/config"
	platformkafka "verigate/internal/platform/kafka"
	audit "verigate/pkg/platform/audit"
	"verigate/pkg/testutil/containers"
)

func TestStoreAgainstRedpanda(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "verification.outcomes"
	producer, err := platformkafka.New(config.KafkaConfig{
		Brokers:  []string{rp.Broker},
		Topic:    topic,
		ClientID: "verigate-test",
	})
	require.NoError(t, err)
	defer producer.Close()

	admin := platformkafka.NewAdmin(producer)
	require.NoError(t, platformkafka.EnsureTopic(ctx, admin, topic))
	require.NoError(t, platformkafka.EnsureTopic(ctx, admin, topic), "existing topic is accepted")

	store := New(producer, topic)
	require.NoError(t, store.Append(ctx, audit.Event{
		UserID:    31,
		AttemptID: "3b0e9a4e-8c65-4bd4-9c2b-6a1f0f0b7c11",
		Subject:   "gemini_one_pro",
		Action:    string(audit.EventVerificationRefunded),
		Decision:  "failed",
		Amount:    5,
		Timestamp: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "31", string(records[0].Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, "ledger", got["category"])
	assert.Equal(t, "verification_refunded", got["action"])
	assert.Equal(t, float64(5), got["amount"])
	assert.Equal(t, "2026-04-01T10:00:00Z", got["timestamp"])
}
