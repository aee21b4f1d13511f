// Package presence records which relay clients are connected to which
// channels, in a store shared by every backplane node.
//
// Each client is a member of a sorted set scored by the time it was last
// seen; nodes refresh their clients on every keepalive and any node may reap
// clients whose node died without cleaning up.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/b-open-io/backplane/store"
)

// DefaultPrefix namespaces presence keys.
const DefaultPrefix = "backplane:"

type Tracker struct {
	store  store.Store
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(s store.Store, prefix string, logger *slog.Logger) *Tracker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: s, prefix: prefix, logger: logger, now: time.Now}
}

func (t *Tracker) clientsKey() string {
	return t.prefix + "clients"
}

func (t *Tracker) clientChannelsKey(id string) string {
	return fmt.Sprintf("%sclients:%s:channels", t.prefix, id)
}

func (t *Tracker) channelClientsKey(channel string) string {
	return fmt.Sprintf("%schannels:%s:clients", t.prefix, channel)
}

func (t *Tracker) stamp() float64 {
	return float64(t.now().Unix())
}

// Register records client id as subscribed to channels.
func (t *Tracker) Register(ctx context.Context, id string, channels []string) error {
	if err := t.store.ZAdd(ctx, t.clientsKey(), store.ScoredMember{Member: id, Score: t.stamp()}); err != nil {
		return fmt.Errorf("register client %s: %w", id, err)
	}
	if err := t.store.SAdd(ctx, t.clientChannelsKey(id), channels...); err != nil {
		return fmt.Errorf("register client %s: %w", id, err)
	}
	for _, ch := range channels {
		if err := t.store.SAdd(ctx, t.channelClientsKey(ch), id); err != nil {
			return fmt.Errorf("register client %s on %s: %w", id, ch, err)
		}
	}
	return nil
}

// Touch refreshes the last-seen time of id.
func (t *Tracker) Touch(ctx context.Context, id string) error {
	return t.store.ZAdd(ctx, t.clientsKey(), store.ScoredMember{Member: id, Score: t.stamp()})
}

// Remove deletes every record of id.
func (t *Tracker) Remove(ctx context.Context, id string) error {
	channels, err := t.store.SMembers(ctx, t.clientChannelsKey(id))
	if err != nil {
		return fmt.Errorf("remove client %s: %w", id, err)
	}
	for _, ch := range channels {
		if err := t.store.SRem(ctx, t.channelClientsKey(ch), id); err != nil {
			return fmt.Errorf("remove client %s from %s: %w", id, ch, err)
		}
	}
	if _, err := t.store.Del(ctx, t.clientChannelsKey(id)); err != nil {
		return fmt.Errorf("remove client %s: %w", id, err)
	}
	return t.store.ZRem(ctx, t.clientsKey(), id)
}

// Clients lists the clients subscribed to channel.
func (t *Tracker) Clients(ctx context.Context, channel string) ([]string, error) {
	return t.store.SMembers(ctx, t.channelClientsKey(channel))
}

// Count returns the number of known clients across all nodes.
func (t *Tracker) Count(ctx context.Context) (int64, error) {
	return t.store.ZCard(ctx, t.clientsKey())
}

// Reap removes clients not seen for maxAge and returns how many it removed.
func (t *Tracker) Reap(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := float64(t.now().Add(-maxAge).Unix())
	stale, err := t.store.ZRangeByScore(ctx, t.clientsKey(), store.ScoreRange{Max: store.Score(cutoff)})
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}

	reaped := 0
	for _, m := range stale {
		if err := t.Remove(ctx, m.Member); err != nil {
			t.logger.Warn("failed to reap client", "client", m.Member, "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		t.logger.Info("reaped stale clients", "count", reaped)
	}
	return reaped, nil
}
