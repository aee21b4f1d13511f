package pubsub

import "context"

// Result is returned by Session.Subscribe and Session.Unsubscribe. It
// completes once the change is recorded locally; broker confirmation is
// reported through the Handler acks and Status, not here.
type Result struct {
	done chan struct{}
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// resolved returns an already completed Result.
func resolved(err error) *Result {
	r := newResult()
	r.complete(err)
	return r
}

func (r *Result) complete(err error) {
	r.err = err
	close(r.done)
}

// Done returns a channel that is closed when the operation completes.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the operation error. Only valid after Done is closed.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the operation completes or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
