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
	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/wire"
)

// Server defaults.
const (
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	DefaultSendBuffer     = 256
)

// ErrSlowConsumer is logged when a connection's send buffer overflows. The
// connection is closed.
var ErrSlowConsumer = errors.New("send buffer full")

// ServerConfig configures a websocket Server.
type ServerConfig struct {
	// ReadTimeout bounds the silence allowed from a client. Clients ping
	// every keep-alive interval, so the default is the keep-alive
	// detection delay.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write (default: 10s).
	WriteTimeout time.Duration

	// MaxMessageSize is the largest accepted frame (default: 64KB).
	MaxMessageSize int64

	// SendBuffer is the number of frames queued per connection (default: 256).
	SendBuffer int

	// CheckOrigin validates the Origin header. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool

	// Logger receives connection, channel and control events (optional).
	Logger log.Logger
}

// Server upgrades HTTP requests to websocket connections and serves the
// channels joined over them from a hub transport.
type Server struct {
	hub      transport.Transport
	config   ServerConfig
	upgrader websocket.Upgrader
	logger   log.Logger

	mu     sync.Mutex
	conns  map[*serverConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server that opens a hub channel for every joined ref.
func NewServer(hub transport.Transport, config ServerConfig) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = transport.DefaultKeepAliveConfig().DetectionDelay()
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
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Server{
		hub:    hub,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: log.OrNoop(config.Logger),
		conns:  make(map[*serverConn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Log(log.Event{
			Timestamp:  time.Now(),
			Layer:      log.LayerTransport,
			Category:   log.CategoryError,
			RemoteAddr: r.RemoteAddr,
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: err.Error(),
				Context: "upgrade",
			},
		})
		return
	}

	c := &serverConn{
		server:   s,
		ws:       ws,
		id:       uuid.New().String(),
		remote:   r.RemoteAddr,
		send:     make(chan []byte, s.config.SendBuffer),
		done:     make(chan struct{}),
		channels: make(map[uint32]transport.Channel),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.logState("", "CONNECTED", "")

	go c.writeLoop()
	c.readLoop()
	c.shutdown()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	c.logState("CONNECTED", "DISCONNECTED", "")
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client and waits for their handlers to return.
// Later requests are rejected with 503.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	s.wg.Wait()
	return nil
}

// serverConn is one client connection. Frames for the client are queued on
// send and written by writeLoop.
type serverConn struct {
	server *Server
	ws     *websocket.Conn
	id     string
	remote string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	channels map[uint32]transport.Channel
}

func (c *serverConn) readLoop() {
	c.ws.SetReadLimit(c.server.config.MaxMessageSize)

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout))
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logError(err, "read")
				}
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		f, err := wire.DecodeFrame(data)
		if err != nil {
			c.logError(err, "decode")
			continue
		}
		c.handle(f)
	}
}

func (c *serverConn) handle(f *wire.Frame) {
	switch f.Type {
	case wire.FrameJoin:
		c.join(f.Ref, f.Topic)
	case wire.FrameLeave:
		c.leave(f.Ref)
	case wire.FrameSend:
		c.forward(f.Ref, *f.Message)
	case wire.FramePing:
		c.logControl(log.ControlMsgPing, log.DirectionIn, f.Ref)
		c.enqueue(&wire.Frame{Type: wire.FramePong, Ref: f.Ref})
		c.logControl(log.ControlMsgPong, log.DirectionOut, f.Ref)
	case wire.FramePong:
		// Keep-alive is client initiated.
	default:
		c.logError(fmt.Errorf("%w: %s from client", wire.ErrUnknownFrameType, f.Type), "handle")
	}
}

// join opens and subscribes a hub channel for ref. The outcome is reported
// with a JOINED or ERROR frame.
func (c *serverConn) join(ref uint32, topic string) {
	c.mu.Lock()
	if _, ok := c.channels[ref]; ok {
		c.mu.Unlock()
		c.enqueue(&wire.Frame{Type: wire.FrameError, Ref: ref, Topic: topic, Error: "ref already joined"})
		return
	}
	ch, err := c.server.hub.Open(topic)
	if err != nil {
		c.mu.Unlock()
		c.enqueue(&wire.Frame{Type: wire.FrameError, Ref: ref, Topic: topic, Error: err.Error()})
		c.logChannel(topic, "", transport.StatusError.String(), err.Error())
		return
	}
	c.channels[ref] = ch
	c.mu.Unlock()

	ch.OnEvent(func(ev transport.Event) {
		c.enqueue(&wire.Frame{Type: wire.FrameEvent, Ref: ref, Event: &ev})
	})

	err = ch.Subscribe(func(status transport.Status, err error) {
		c.onStatus(ref, ch, status, err)
	})
	if err != nil {
		c.onStatus(ref, ch, transport.StatusError, err)
	}
}

func (c *serverConn) onStatus(ref uint32, ch transport.Channel, status transport.Status, err error) {
	switch status {
	case transport.StatusSubscribed:
		c.enqueue(&wire.Frame{Type: wire.FrameJoined, Ref: ref, Topic: ch.Topic()})
	case transport.StatusError, transport.StatusClosed:
		// Channels removed by leave or shutdown close silently.
		if !c.remove(ref, ch) {
			return
		}
		_ = ch.Close()
		if status == transport.StatusError {
			msg := "channel error"
			if err != nil {
				msg = err.Error()
			}
			c.enqueue(&wire.Frame{Type: wire.FrameError, Ref: ref, Topic: ch.Topic(), Error: msg})
		} else {
			c.enqueue(&wire.Frame{Type: wire.FrameClosed, Ref: ref, Topic: ch.Topic()})
		}
	default:
		return
	}

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	c.logChannel(ch.Topic(), "", status.String(), reason)
}

func (c *serverConn) leave(ref uint32) {
	c.mu.Lock()
	ch, ok := c.channels[ref]
	delete(c.channels, ref)
	c.mu.Unlock()

	if ok {
		_ = ch.Close()
		c.logChannel(ch.Topic(), "", transport.StatusClosed.String(), "leave")
	}
}

func (c *serverConn) forward(ref uint32, msg transport.Message) {
	c.mu.Lock()
	ch, ok := c.channels[ref]
	c.mu.Unlock()
	if !ok {
		c.logError(fmt.Errorf("send on ref %d: %w", ref, transport.ErrNotSubscribed), "send")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.server.config.WriteTimeout)
	defer cancel()
	if err := ch.Send(ctx, msg); err != nil {
		c.logError(transport.NewError("send", ch.Topic(), err), "send")
	}
}

// remove deletes ref if it still maps to ch.
func (c *serverConn) remove(ref uint32, ch transport.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels[ref] != ch {
		return false
	}
	delete(c.channels, ref)
	return true
}

// enqueue queues a frame for the client. A full buffer closes the
// connection.
func (c *serverConn) enqueue(f *wire.Frame) {
	data, err := wire.EncodeFrame(f)
	if err != nil {
		c.logError(err, "encode")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logError(ErrSlowConsumer, "send")
		c.close()
	}
}

func (c *serverConn) writeLoop() {
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.ws.Close()
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				// A websocket write deadline cannot be recovered.
				c.logError(err, "write")
				c.close()
				_ = c.ws.Close()
				return
			}
		}
	}
}

// close stops the writer, which closes the socket and ends readLoop.
func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// shutdown closes every channel the connection still holds.
func (c *serverConn) shutdown() {
	c.close()

	c.mu.Lock()
	channels := c.channels
	c.channels = make(map[uint32]transport.Channel)
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}

func (c *serverConn) logState(oldState, newState, reason string) {
	c.server.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.id,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		RemoteAddr: c.remote,
		Status: &log.StatusEventData{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *serverConn) logChannel(topic, oldState, newState, reason string) {
	c.server.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.id,
		Topic:      topic,
		Layer:      log.LayerChannel,
		Category:   log.CategoryState,
		RemoteAddr: c.remote,
		Status: &log.StatusEventData{
			Entity:   log.StateEntityChannel,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *serverConn) logControl(t log.ControlMsgType, dir log.Direction, seq uint32) {
	c.server.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.id,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		RemoteAddr: c.remote,
		Control:    &log.ControlMsgEvent{Type: t, Seq: seq},
	})
}

func (c *serverConn) logError(err error, op string) {
	c.server.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.id,
		Layer:      log.LayerTransport,
		Category:   log.CategoryError,
		RemoteAddr: c.remote,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}

var _ http.Handler = (*Server)(nil)
