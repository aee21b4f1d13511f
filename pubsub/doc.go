// Package pubsub maintains a resilient subscription session against a Redis
// pub/sub broker, for use as a real-time messaging backplane.
//
// A Session owns one broker connection at a time. Callers record which
// channels they want with Subscribe and Unsubscribe and register message
// listeners with OnMessage; the session keeps the broker in line with that
// desired set across disconnects.
//
// Key Features:
//   - Subscriptions survive reconnects: every desired channel is
//     re-subscribed on the new connection
//   - Heartbeat probing of idle connections
//   - Exponential backoff between reconnect attempts, with a give-up
//     threshold (see package backoff)
//   - Messages for a channel are dropped as soon as it is unsubscribed
//   - Listener panics are recovered and logged
//
// Session States:
//
//	Disconnected -> Subscribed     receive loop started
//	Subscribed   -> Disconnected   last channel unsubscribed
//	any live     -> Connecting     heartbeat or receive failure
//	Connecting   -> Disconnected   redial succeeded
//	Connecting   -> Failed         retry budget exhausted (terminal)
//	any          -> Closed         Shutdown (terminal)
//
// Supported Brokers:
//   - Redis: RedisDialer, over go-redis PubSub
//   - In-memory: Broker, for single-process deployments and tests
//
// Example Usage:
//
//	dialer, err := pubsub.CreatePubSub("redis://localhost:6379")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := pubsub.New(dialer, pubsub.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Shutdown()
//
//	session.OnMessage(func(channel, payload string) {
//	    fmt.Println(channel, payload)
//	})
//	session.Subscribe("events")
package pubsub
