package memory

import (
	"context"
	"sync"
	"time"

	"github.com/orgdesk/realtime-go/pkg/transport"
)

// channel is a hub channel. Events and status transitions are delivered by
// its mailbox in push order.
type channel struct {
	hub   *Hub
	id    uint64
	topic string
	box   *transport.Mailbox

	mu         sync.Mutex
	status     transport.Status
	subscribed bool
	closed     bool
}

func newChannel(h *Hub, id uint64, topic string) *channel {
	ch := &channel{
		hub:    h,
		id:     id,
		topic:  topic,
		box:    transport.NewMailbox(),
		status: transport.StatusConnecting,
	}
	return ch
}

func (c *channel) Topic() string {
	return c.topic
}

func (c *channel) OnEvent(h transport.EventHandler) {
	c.box.SetEventHandler(h)
}

func (c *channel) Subscribe(cb transport.StatusHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrChannelClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return transport.ErrAlreadySubscribed
	}
	c.subscribed = true
	c.mu.Unlock()

	c.box.SetStatusHandler(cb)
	c.box.PushStatus(transport.StatusConnecting, nil)

	delay, failErr := c.hub.subscribeSettings()
	if failErr != nil {
		c.setStatus(transport.StatusError)
		c.box.PushStatus(transport.StatusError, failErr)
		return nil
	}

	if delay > 0 {
		time.AfterFunc(delay, func() { c.hub.join(c) })
		return nil
	}
	c.hub.join(c)
	return nil
}

func (c *channel) Send(ctx context.Context, msg transport.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch c.Status() {
	case transport.StatusSubscribed:
		return c.hub.send(c, msg)
	case transport.StatusClosed:
		return transport.ErrChannelClosed
	default:
		return transport.ErrNotSubscribed
	}
}

func (c *channel) Status() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.status = transport.StatusClosed
	c.mu.Unlock()

	c.hub.leave(c)
	c.box.Close(transport.StatusClosed, nil)
	return nil
}

// setStatus records a status unless the channel is already closed.
func (c *channel) setStatus(s transport.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.status = s
	}
}

var _ transport.Channel = (*channel)(nil)
