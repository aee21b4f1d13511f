// Package publish provides message publishing for the backplane.
//
// Sessions in package pubsub only receive; every message they deliver was
// sent by a Publisher, from this process or another one sharing the broker.
//
// Currently Supported Backends:
//   - Redis: PUBLISH on a pooled go-redis client
//   - In-memory: the pubsub.Broker a process's sessions dial
//
// Publisher Interface:
//
// The Publisher interface defines a simple contract:
//   - Publish(ctx, channel, payload) - Send payload to all subscribers of a
//     channel, returning how many connections received it
//
// Example Usage:
//
//	publisher, err := publish.NewRedisPublish("redis://localhost:6379")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer publisher.Close()
//
//	n, err := publisher.Publish(ctx, "events", `{"type":"update"}`)
//
// A receiver count of zero is not an error: nobody was subscribed.
package publish
