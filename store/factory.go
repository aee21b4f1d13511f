package store

import (
	"fmt"
	"strings"
)

// DefaultConnString is used when no store is configured.
const DefaultConnString = "redis://localhost:6379"

// CreateStore creates a Store implementation from a connection string
//
// Supported formats:
//   - redis://, rediss://, unix:// - Redis
//   - mongodb://, mongodb+srv:// - MongoDB
//   - Empty string: defaults to redis://localhost:6379
func CreateStore(connString string) (Store, error) {
	if connString == "" {
		connString = DefaultConnString
	}

	switch {
	case strings.HasPrefix(connString, "redis://"),
		strings.HasPrefix(connString, "rediss://"),
		strings.HasPrefix(connString, "unix://"):
		return NewRedisStore(connString)
	case strings.HasPrefix(connString, "mongodb://"),
		strings.HasPrefix(connString, "mongodb+srv://"):
		return NewMongoStore(connString)
	default:
		return nil, fmt.Errorf("unsupported store URL: %s", connString)
	}
}
