package publish

import (
	"context"

	"github.com/b-open-io/backplane/pubsub"
)

// BrokerPublish publishes on an in-memory broker.
type BrokerPublish struct {
	Broker *pubsub.Broker
}

func NewBrokerPublish(broker *pubsub.Broker) *BrokerPublish {
	return &BrokerPublish{Broker: broker}
}

func (b *BrokerPublish) Publish(ctx context.Context, channel, payload string) (int, error) {
	return b.Broker.Publish(ctx, channel, payload)
}

// Close is a no-op; the broker outlives its publishers.
func (b *BrokerPublish) Close() error {
	return nil
}
