package pubsub

import (
	"fmt"
	"time"
)

// connLost reports a failure observed on conn. Failures on a connection that
// has already been replaced are ignored.
func (s *Session) connLost(conn Conn, cause error) {
	s.connMu.Lock()
	current := s.conn == conn && !s.closing
	s.connMu.Unlock()
	if !current {
		return
	}
	s.triggerReconnect(cause)
}

// triggerReconnect starts the reconnect sequence unless one is already
// running or the session is in a terminal state.
func (s *Session) triggerReconnect(cause error) {
	if !s.state.transitionFrom(StateConnecting, StateDisconnected, StateSubscribed) {
		return
	}
	s.logger.Warn("connection lost, reconnecting", "error", cause)

	s.connMu.Lock()
	s.spawnLocked(s.reconnect)
	s.connMu.Unlock()
}

// reconnect owns the session while it is StateConnecting. Every pass counts
// one failure, so the loop ends in either a new connection or StateFailed.
func (s *Session) reconnect() {
	for {
		attempt := int(s.restarts.Add(1))
		retry := attempt - 1
		if s.policy.GiveUp(retry) {
			s.fail(retry)
			return
		}

		delay := s.policy.Delay(retry)
		s.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
		if s.opts.OnReconnecting != nil {
			s.opts.OnReconnecting(attempt, delay)
		}
		if !s.sleep(delay) {
			return
		}

		s.connMu.Lock()
		old := s.conn
		s.conn = nil
		s.connMu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		s.reg.unconfirmAll()
		s.count.Store(0)

		conn, err := s.dialer.Dial(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		s.connMu.Lock()
		if s.closing {
			s.connMu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.state.transition(StateConnecting, StateDisconnected)
		if s.reg.len() > 0 {
			s.startListenerLocked(conn)
		}
		s.connMu.Unlock()

		s.logger.Info("reconnected", "attempt", attempt)
		s.notifyConnect()
		return
	}
}

// fail moves the session to StateFailed after retries attempts.
func (s *Session) fail(retries int) {
	if !s.state.transition(StateConnecting, StateFailed) {
		return
	}

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	err := fmt.Errorf("%w after %d attempts", ErrSessionFailed, retries)
	s.logger.Error("giving up on connection", "attempts", retries, "error", err)
	if s.opts.OnFailed != nil {
		s.opts.OnFailed(err)
	}
}

// sleep waits for d. Returns false if the session shut down first.
func (s *Session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
