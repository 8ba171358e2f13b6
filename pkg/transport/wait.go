package transport

import "context"

// SubscribeAndWait subscribes ch and blocks until the first terminal status
// or until ctx is done.
//
// observe, if non-nil, is invoked for every status transition, including
// transitions after SubscribeAndWait has returned.
//
// The returned error is the subscribe error, the error reported with a
// StatusError/StatusClosed transition, or ctx.Err().
func SubscribeAndWait(ctx context.Context, ch Channel, observe StatusHandler) (Status, error) {
	type terminal struct {
		status Status
		err    error
	}
	done := make(chan terminal, 1)

	cb := func(status Status, err error) {
		if observe != nil {
			observe(status, err)
		}
		if !status.IsTerminal() {
			return
		}
		select {
		case done <- terminal{status: status, err: err}:
		default:
		}
	}

	if err := ch.Subscribe(cb); err != nil {
		return StatusError, err
	}

	select {
	case t := <-done:
		if t.status == StatusClosed && t.err == nil {
			t.err = ErrChannelClosed
		}
		return t.status, t.err
	case <-ctx.Done():
		return StatusConnecting, ctx.Err()
	}
}
