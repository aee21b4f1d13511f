package pubsub

import (
	"log/slog"
	"slices"
	"sync"
)

// registry holds the desired channel set and the message listeners behind a
// single mutex. Callers holding the session's connMu may take mu, never the
// reverse.
type registry struct {
	mu        sync.Mutex
	channels  map[string]bool // channel -> confirmed by the broker
	listeners []Listener
	logger    *slog.Logger
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{
		channels: make(map[string]bool),
		logger:   logger,
	}
}

// add marks channel as desired. Reports whether it was newly added.
func (r *registry) add(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[channel]; ok {
		return false
	}
	r.channels[channel] = false
	return true
}

// remove drops channel from the desired set. Reports whether it was present.
func (r *registry) remove(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[channel]; !ok {
		return false
	}
	delete(r.channels, channel)
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// snapshot returns the desired channels, sorted.
func (r *registry) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// confirm records a broker subscribe ack. Reports whether the channel is still
// desired; an ack for a channel removed in the meantime returns false.
func (r *registry) confirm(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[channel]; !ok {
		return false
	}
	r.channels[channel] = true
	return true
}

// unconfirm records a broker unsubscribe ack for a channel that may still be
// desired.
func (r *registry) unconfirm(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[channel]; ok {
		r.channels[channel] = false
	}
}

// unconfirmAll clears every confirmation, used when a connection is replaced.
func (r *registry) unconfirmAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.channels {
		r.channels[ch] = false
	}
}

func (r *registry) confirmed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ok := range r.channels {
		if ok {
			n++
		}
	}
	return n
}

func (r *registry) register(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// dispatch delivers payload to every listener in registration order. Messages
// for channels no longer desired are dropped. Listeners run without the lock
// held, so they may call back into the session.
func (r *registry) dispatch(channel, payload string) int {
	r.mu.Lock()
	if _, ok := r.channels[channel]; !ok {
		r.mu.Unlock()
		r.logger.Debug("dropping message for inactive channel", "channel", channel)
		return 0
	}
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		r.invoke(l, channel, payload)
	}
	return len(listeners)
}

func (r *registry) invoke(l Listener, channel, payload string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panicked", "channel", channel, "panic", rec)
		}
	}()
	l(channel, payload)
}
