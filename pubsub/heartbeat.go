package pubsub

import (
	"fmt"
	"time"
)

// heartbeat probes the connection on every tick until the session shuts down.
func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.probe()
		}
	}
}

// probe pings an idle connection. A live subscribe stream is never probed.
func (s *Session) probe() {
	if s.state.get() != StateDisconnected {
		return
	}
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	if !s.probing.CompareAndSwap(false, true) {
		return
	}
	defer s.probing.Store(false)

	if err := conn.Ping(s.ctx); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.connLost(conn, fmt.Errorf("heartbeat: %w", err))
		return
	}

	// a reconnect may have started while the ping was in flight
	s.connMu.Lock()
	current := s.conn == conn && s.state.get() == StateDisconnected
	s.connMu.Unlock()
	if current {
		s.restarts.Store(0)
	}
}
