package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/orgdesk/realtime-go/pkg/connection"
	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/wire"
)

// ErrClientClosed is returned by Open and Dial after Close.
var ErrClientClosed = errors.New("client closed")

// ClientConfig configures a websocket Client.
type ClientConfig struct {
	// URL is the server endpoint, e.g. "ws://localhost:4000/v1/socket".
	URL string

	// Header is sent with the upgrade request (optional).
	Header http.Header

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// WriteTimeout bounds a single frame write (default: 10s).
	WriteTimeout time.Duration

	// MaxMessageSize is the largest accepted frame (default: 64KB).
	MaxMessageSize int64

	// SendBuffer is the number of frames queued for writing (default: 256).
	SendBuffer int

	// KeepAlive configures ping/pong liveness monitoring.
	KeepAlive transport.KeepAliveConfig

	// Backoff configures reconnection delays.
	Backoff connection.Policy

	// ConnectTimeout bounds each dial (default: 30s).
	ConnectTimeout time.Duration

	// SessionID tags log events (default: random UUID).
	SessionID string

	// Logger receives connection, channel and control events (optional).
	Logger log.Logger
}

// Client is a Transport that multiplexes channels over one websocket
// connection. After a connection loss every channel reports CHANNEL_ERROR
// with transport.ErrConnectionLost; once the client reconnects the channels
// rejoin and report SUBSCRIBED again.
type Client struct {
	config ClientConfig
	dialer *websocket.Dialer
	logger log.Logger
	super  *connection.Supervisor

	mu       sync.Mutex
	conn     *clientConn
	channels map[uint32]*channel
	nextRef  uint32
	closed   bool
}

// Dial connects to config.URL and starts automatic reconnection.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("ws: URL is required")
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultSendBuffer
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = connection.DefaultConnectTimeout
	}
	if config.SessionID == "" {
		config.SessionID = uuid.New().String()
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	c := &Client{
		config:   config,
		dialer:   dialer,
		logger:   log.OrNoop(config.Logger),
		channels: make(map[uint32]*channel),
	}
	c.super = connection.NewSupervisor(c.connect, connection.Config{
		Policy:         config.Backoff,
		ConnectTimeout: config.ConnectTimeout,
		Hooks: connection.Hooks{
			OnStateChange: func(from, to connection.State) {
				c.logState(from.String(), to.String(), "")
			},
		},
	})
	if err := c.super.Start(ctx); err != nil {
		c.super.Close()
		return nil, err
	}
	return c, nil
}

// Open creates an unsubscribed channel for topic.
func (c *Client) Open(topic string) (transport.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	c.nextRef++
	if c.nextRef == 0 {
		c.nextRef = 1
	}
	ch := &channel{
		client: c,
		ref:    c.nextRef,
		topic:  topic,
		box:    transport.NewMailbox(),
		status: transport.StatusConnecting,
	}
	c.channels[ch.ref] = ch
	return ch, nil
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.super.State()
}

// Latency returns the round trip time of the last answered ping.
func (c *Client) Latency() time.Duration {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0
	}
	return conn.keepAlive.Stats().LastLatency
}

// Close closes every channel and the connection, and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	channels := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	c.super.Close()
	if conn != nil {
		conn.close()
	}
	return nil
}

// connect dials the server and rejoins every channel that wants to be
// subscribed. It is the connection.Supervisor's ConnectFunc.
func (c *Client) connect(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	conn := &clientConn{
		client: c,
		ws:     ws,
		send:   make(chan []byte, c.config.SendBuffer),
		done:   make(chan struct{}),
	}
	conn.keepAlive = transport.NewKeepAlive(c.config.KeepAlive, conn.ping, func() {
		c.connectionLost(conn, transport.ErrConnectionLost)
	})
	conn.keepAlive.OnPong(func(seq uint32, latency time.Duration) {
		c.logControl(log.ControlMsgPong, log.DirectionIn, seq, latency)
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrClientClosed
	}
	c.conn = conn
	rejoin := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		if ch.wantsJoin() {
			rejoin = append(rejoin, ch)
		}
	}
	c.mu.Unlock()

	go conn.writeLoop()
	go conn.readLoop()
	conn.keepAlive.Start(context.Background())

	for _, ch := range rejoin {
		conn.enqueue(&wire.Frame{Type: wire.FrameJoin, Ref: ch.ref, Topic: ch.topic})
	}
	return nil
}

// connectionLost tears down conn and fails every joined channel.
func (c *Client) connectionLost(conn *clientConn, cause error) {
	conn.close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	channels := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	if closed {
		return
	}
	if cause != nil {
		c.logError(cause, "connection")
	}
	for _, ch := range channels {
		ch.lost()
	}
	c.super.Lost()
}

// dispatch routes a server frame to its channel.
func (c *Client) dispatch(conn *clientConn, f *wire.Frame) {
	if f.Type == wire.FramePong {
		conn.keepAlive.PongReceived(f.Ref)
		return
	}

	c.mu.Lock()
	ch := c.channels[f.Ref]
	c.mu.Unlock()
	if ch == nil {
		return
	}

	switch f.Type {
	case wire.FrameJoined:
		ch.markJoined()
	case wire.FrameError:
		ch.reject(f.Error)
	case wire.FrameClosed:
		ch.closedByServer()
	case wire.FrameEvent:
		ch.box.PushEvent(*f.Event)
	}
}

// write queues a frame on the current connection.
func (c *Client) write(ctx context.Context, f *wire.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrConnectionLost
	}

	data, err := wire.EncodeFrame(f)
	if err != nil {
		return err
	}
	select {
	case conn.send <- data:
		return nil
	case <-conn.done:
		return transport.ErrConnectionLost
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryWrite queues a frame without blocking. Used on close paths.
func (c *Client) tryWrite(f *wire.Frame) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.enqueue(f)
	}
}

// connected reports whether a connection is up.
func (c *Client) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) remove(ref uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, ref)
}

func (c *Client) logState(oldState, newState, reason string) {
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.config.SessionID,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		RemoteAddr: c.config.URL,
		Status: &log.StatusEventData{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) logControl(t log.ControlMsgType, dir log.Direction, seq uint32, latency time.Duration) {
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.config.SessionID,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		RemoteAddr: c.config.URL,
		Control:    &log.ControlMsgEvent{Type: t, Seq: seq, Latency: latency},
	})
}

func (c *Client) logError(err error, op string) {
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.config.SessionID,
		Layer:      log.LayerTransport,
		Category:   log.CategoryError,
		RemoteAddr: c.config.URL,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}

// clientConn is one websocket connection of a Client.
type clientConn struct {
	client    *Client
	ws        *websocket.Conn
	keepAlive *transport.KeepAlive

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (cc *clientConn) ping(seq uint32) error {
	cc.client.logControl(log.ControlMsgPing, log.DirectionOut, seq, 0)
	if !cc.enqueue(&wire.Frame{Type: wire.FramePing, Ref: seq}) {
		return transport.ErrConnectionLost
	}
	return nil
}

// enqueue queues a frame without blocking and reports whether it was queued.
// A full buffer drops the connection.
func (cc *clientConn) enqueue(f *wire.Frame) bool {
	data, err := wire.EncodeFrame(f)
	if err != nil {
		cc.client.logError(err, "encode")
		return false
	}
	select {
	case <-cc.done:
		return false
	default:
	}
	select {
	case cc.send <- data:
		return true
	case <-cc.done:
		return false
	default:
		go cc.client.connectionLost(cc, ErrSlowConsumer)
		return false
	}
}

func (cc *clientConn) readLoop() {
	cc.ws.SetReadLimit(cc.client.config.MaxMessageSize)

	for {
		messageType, data, err := cc.ws.ReadMessage()
		if err != nil {
			select {
			case <-cc.done:
				return
			default:
			}
			cc.client.connectionLost(cc, fmt.Errorf("%w: %w", transport.ErrConnectionLost, err))
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		f, err := wire.DecodeFrame(data)
		if err != nil {
			cc.client.logError(err, "decode")
			continue
		}
		cc.client.dispatch(cc, f)
	}
}

func (cc *clientConn) writeLoop() {
	timeout := cc.client.config.WriteTimeout
	for {
		select {
		case <-cc.done:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(timeout))
			_ = cc.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = cc.ws.Close()
			return
		case data := <-cc.send:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(timeout))
			if err := cc.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				go cc.client.connectionLost(cc, fmt.Errorf("%w: %w", transport.ErrConnectionLost, err))
				_ = cc.ws.Close()
				return
			}
		}
	}
}

func (cc *clientConn) close() {
	cc.closeOnce.Do(func() {
		cc.keepAlive.Stop()
		close(cc.done)
	})
}

// channel is a client-side channel identified by ref on the connection.
type channel struct {
	client *Client
	ref    uint32
	topic  string
	box    *transport.Mailbox

	mu         sync.Mutex
	status     transport.Status
	subscribed bool
	rejected   bool
	closed     bool
}

func (ch *channel) Topic() string {
	return ch.topic
}

func (ch *channel) OnEvent(h transport.EventHandler) {
	ch.box.SetEventHandler(h)
}

func (ch *channel) Subscribe(cb transport.StatusHandler) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return transport.ErrChannelClosed
	}
	if ch.subscribed {
		ch.mu.Unlock()
		return transport.ErrAlreadySubscribed
	}
	ch.subscribed = true
	ch.mu.Unlock()

	ch.box.SetStatusHandler(cb)
	ch.box.PushStatus(transport.StatusConnecting, nil)

	// Without a connection the channel joins once the client reconnects.
	if !ch.client.connected() {
		ch.setStatus(transport.StatusError)
		ch.box.PushStatus(transport.StatusError, transport.ErrConnectionLost)
		return nil
	}
	ch.client.tryWrite(&wire.Frame{Type: wire.FrameJoin, Ref: ch.ref, Topic: ch.topic})
	return nil
}

func (ch *channel) Send(ctx context.Context, msg transport.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch ch.Status() {
	case transport.StatusSubscribed:
		return ch.client.write(ctx, &wire.Frame{Type: wire.FrameSend, Ref: ch.ref, Message: &msg})
	case transport.StatusClosed:
		return transport.ErrChannelClosed
	default:
		return transport.ErrNotSubscribed
	}
}

func (ch *channel) Status() transport.Status {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

func (ch *channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.status = transport.StatusClosed
	joined := ch.subscribed && !ch.rejected
	ch.mu.Unlock()

	ch.client.remove(ch.ref)
	if joined {
		ch.client.tryWrite(&wire.Frame{Type: wire.FrameLeave, Ref: ch.ref, Topic: ch.topic})
	}
	ch.box.Close(transport.StatusClosed, nil)
	return nil
}

// wantsJoin reports whether the channel should be joined on (re)connect.
func (ch *channel) wantsJoin() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.subscribed && !ch.rejected && !ch.closed
}

func (ch *channel) markJoined() {
	if ch.setStatus(transport.StatusSubscribed) {
		ch.box.PushStatus(transport.StatusSubscribed, nil)
	}
}

func (ch *channel) reject(reason string) {
	ch.mu.Lock()
	ch.rejected = true
	ch.mu.Unlock()
	if ch.setStatus(transport.StatusError) {
		ch.box.PushStatus(transport.StatusError, fmt.Errorf("%w: %s", transport.ErrSubscribeRejected, reason))
	}
}

func (ch *channel) closedByServer() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.status = transport.StatusClosed
	ch.mu.Unlock()

	ch.client.remove(ch.ref)
	ch.box.Close(transport.StatusClosed, nil)
}

// lost reports a connection loss to a joined or joining channel.
func (ch *channel) lost() {
	if !ch.wantsJoin() {
		return
	}
	if ch.setStatus(transport.StatusError) {
		ch.box.PushStatus(transport.StatusError, transport.ErrConnectionLost)
	}
}

// setStatus records s unless the channel is closed.
func (ch *channel) setStatus(s transport.Status) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return false
	}
	ch.status = s
	return true
}

var (
	_ transport.Transport = (*Client)(nil)
	_ transport.Channel   = (*channel)(nil)
)
