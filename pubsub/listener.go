package pubsub

import "fmt"

// startListenerLocked binds a receive loop to conn. connMu must be held.
func (s *Session) startListenerLocked(conn Conn) {
	if s.spawnLocked(func() { s.listen(conn) }) {
		s.listenConn = conn
	}
}

// listen runs the receive loop for conn until the desired set empties, the
// connection fails, or the session shuts down.
func (s *Session) listen(conn Conn) {
	h := s.handler(conn)
	for {
		s.connMu.Lock()
		if s.closing || s.conn != conn || s.listenConn != conn {
			s.releaseLocked(conn)
			s.connMu.Unlock()
			return
		}
		channels := s.reg.snapshot()
		if len(channels) == 0 {
			s.releaseLocked(conn)
			s.connMu.Unlock()
			return
		}
		if !s.state.transitionFrom(StateSubscribed, StateDisconnected, StateSubscribed) {
			s.releaseLocked(conn)
			s.connMu.Unlock()
			return
		}
		s.connMu.Unlock()

		s.logger.Debug("listening", "channels", len(channels))
		err := conn.Listen(s.ctx, h, channels...)
		if err == nil {
			// every channel was unsubscribed; loop again in case more were added
			continue
		}

		s.connMu.Lock()
		s.releaseLocked(conn)
		closing := s.closing
		s.connMu.Unlock()
		if closing || s.ctx.Err() != nil {
			return
		}

		s.reg.unconfirmAll()
		s.count.Store(0)
		s.logger.Warn("receive loop stopped", "error", err)
		s.connLost(conn, fmt.Errorf("receive loop: %w", err))
		return
	}
}

func (s *Session) releaseLocked(conn Conn) {
	if s.listenConn == conn {
		s.listenConn = nil
	}
}

func (s *Session) handler(conn Conn) Handler {
	return Handler{
		OnMessage: func(channel, payload string) {
			s.reg.dispatch(channel, payload)
		},
		OnSubscribe: func(channel string, count int) {
			s.count.Store(int64(count))
			s.restarts.Store(0)
			s.state.transition(StateDisconnected, StateSubscribed)
			if !s.reg.confirm(channel) {
				// removed while the subscribe was in flight
				if err := conn.Unsubscribe(s.ctx, channel); err != nil {
					s.logger.Warn("unsubscribe failed", "channel", channel, "error", err)
				}
				return
			}
			s.logger.Debug("subscribed", "channel", channel, "count", count)
		},
		OnUnsubscribe: func(channel string, count int) {
			s.count.Store(int64(count))
			s.reg.unconfirm(channel)
			if count == 0 {
				s.state.transition(StateSubscribed, StateDisconnected)
			}
			s.logger.Debug("unsubscribed", "channel", channel, "count", count)
		},
	}
}
