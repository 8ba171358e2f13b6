package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedChannel reports a fixed sequence of statuses on Subscribe.
type scriptedChannel struct {
	mu           sync.Mutex
	statuses     []Status
	errs         []error
	subscribeErr error
}

func (c *scriptedChannel) Topic() string                       { return "scripted" }
func (c *scriptedChannel) OnEvent(EventHandler)                {}
func (c *scriptedChannel) Send(context.Context, Message) error { return nil }
func (c *scriptedChannel) Status() Status                      { return StatusConnecting }
func (c *scriptedChannel) Close() error                        { return nil }

func (c *scriptedChannel) Subscribe(cb StatusHandler) error {
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.statuses {
			cb(s, c.errs[i])
		}
	}()
	return nil
}

func TestSubscribeAndWait(t *testing.T) {
	boom := errors.New("boom")

	t.Run("Subscribed", func(t *testing.T) {
		ch := &scriptedChannel{
			statuses: []Status{StatusConnecting, StatusSubscribed},
			errs:     []error{nil, nil},
		}
		status, err := SubscribeAndWait(context.Background(), ch, nil)
		if status != StatusSubscribed || err != nil {
			t.Errorf("got (%v, %v), want (SUBSCRIBED, nil)", status, err)
		}
	})

	t.Run("Error", func(t *testing.T) {
		ch := &scriptedChannel{statuses: []Status{StatusError}, errs: []error{boom}}
		status, err := SubscribeAndWait(context.Background(), ch, nil)
		if status != StatusError || !errors.Is(err, boom) {
			t.Errorf("got (%v, %v), want (CHANNEL_ERROR, boom)", status, err)
		}
	})

	t.Run("ClosedWithoutError", func(t *testing.T) {
		ch := &scriptedChannel{statuses: []Status{StatusClosed}, errs: []error{nil}}
		_, err := SubscribeAndWait(context.Background(), ch, nil)
		if !errors.Is(err, ErrChannelClosed) {
			t.Errorf("err = %v, want ErrChannelClosed", err)
		}
	})

	t.Run("SubscribeFails", func(t *testing.T) {
		ch := &scriptedChannel{subscribeErr: ErrAlreadySubscribed}
		status, err := SubscribeAndWait(context.Background(), ch, nil)
		if status != StatusError || !errors.Is(err, ErrAlreadySubscribed) {
			t.Errorf("got (%v, %v)", status, err)
		}
	})

	t.Run("ContextDone", func(t *testing.T) {
		ch := &scriptedChannel{statuses: []Status{StatusConnecting}, errs: []error{nil}}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		status, err := SubscribeAndWait(ctx, ch, nil)
		if status != StatusConnecting || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("got (%v, %v)", status, err)
		}
	})

	t.Run("ObserverSeesEveryTransition", func(t *testing.T) {
		ch := &scriptedChannel{
			statuses: []Status{StatusConnecting, StatusSubscribed, StatusError},
			errs:     []error{nil, nil, boom},
		}
		var mu sync.Mutex
		var seen []Status
		all := make(chan struct{})
		_, _ = SubscribeAndWait(context.Background(), ch, func(s Status, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
			if len(seen) == 3 {
				close(all)
			}
		})
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatal("observer did not see all transitions")
		}
	})
}

func TestErrorWrapping(t *testing.T) {
	err := NewError("subscribe", "org:42", ErrConnectionLost)

	if !errors.Is(err, ErrConnectionLost) {
		t.Error("errors.Is should see the cause")
	}
	var te *Error
	if !errors.As(err, &te) || te.Topic != "org:42" {
		t.Errorf("errors.As failed: %v", err)
	}
	if got, want := err.Error(), `transport subscribe "org:42": connection lost`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
