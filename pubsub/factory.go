package pubsub

import (
	"fmt"
	"strings"
)

// CreatePubSub creates the appropriate Dialer from a connection string.
// Auto-detects the broker type from the URL scheme.
//
// Supported formats:
//   - redis://localhost:6379 - Redis pub/sub
//   - rediss://localhost:6380 - Redis pub/sub over TLS
//   - unix:///var/run/redis.sock - Redis pub/sub over a unix socket
//   - channels:// - In-memory broker (no dependencies)
//   - Empty string: defaults to channels://
//
// Example:
//
//	CreatePubSub("redis://localhost:6379")  // Redis pub/sub
//	CreatePubSub("channels://")             // In-memory broker
//	CreatePubSub("")                        // Defaults to channels://
func CreatePubSub(connectionString string) (Dialer, error) {
	if connectionString == "" {
		connectionString = "channels://"
	}

	switch {
	case strings.HasPrefix(connectionString, "redis://"),
		strings.HasPrefix(connectionString, "rediss://"),
		strings.HasPrefix(connectionString, "unix://"):
		dialer, err := NewRedisURLDialer(connectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis pub/sub: %w", err)
		}
		return dialer, nil

	case strings.HasPrefix(connectionString, "channels://"):
		return NewBroker(), nil

	default:
		return nil, fmt.Errorf("unsupported pub/sub URL scheme: %s", connectionString)
	}
}
