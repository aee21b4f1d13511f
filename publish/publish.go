package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/b-open-io/backplane/pubsub"
)

// Publisher sends messages to every subscriber of a channel.
type Publisher interface {
	// Publish returns the number of connections the broker delivered to.
	Publish(ctx context.Context, channel, payload string) (int, error)
	Close() error
}

// CreatePublisher creates the Publisher matching a pub/sub connection string.
// For channels:// the dialer must be the *pubsub.Broker the sessions use, since
// an in-memory broker only reaches its own connections.
func CreatePublisher(connString string, dialer pubsub.Dialer) (Publisher, error) {
	if connString == "" {
		connString = "channels://"
	}

	switch {
	case strings.HasPrefix(connString, "redis://"),
		strings.HasPrefix(connString, "rediss://"),
		strings.HasPrefix(connString, "unix://"):
		return NewRedisPublish(connString)
	case strings.HasPrefix(connString, "channels://"):
		broker, ok := dialer.(*pubsub.Broker)
		if !ok {
			return nil, fmt.Errorf("channels:// publisher needs the in-memory broker, got %T", dialer)
		}
		return NewBrokerPublish(broker), nil
	default:
		return nil, fmt.Errorf("unsupported publisher URL scheme: %s", connString)
	}
}
