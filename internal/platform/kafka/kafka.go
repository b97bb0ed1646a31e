// Package kafka builds the franz-go client used by the outcome audit stream.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"verigate/internal/platform/config"
)

// New returns a producer client, or nil when no brokers are configured.
func New(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// TopicCreator is the subset of *kadm.Client used to ensure the topic.
type TopicCreator interface {
	CreateTopic(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topic string) (kadm.CreateTopicResponse, error)
}

// EnsureTopic creates the topic with broker defaults; an existing topic is fine.
func EnsureTopic(ctx context.Context, admin TopicCreator, topic string) error {
	resp, err := admin.CreateTopic(ctx, -1, -1, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	return nil
}

// NewAdmin wraps an existing client for administrative calls.
func NewAdmin(client *kgo.Client) *kadm.Client {
	return kadm.NewClient(client)
}
