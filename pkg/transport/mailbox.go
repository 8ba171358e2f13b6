package transport

import "sync"

// delivery is one queued item: an event or a status transition.
type delivery struct {
	event  *Event
	status Status
	err    error
	final  bool
}

// Mailbox delivers the events and status transitions of one channel on a
// single goroutine, in the order they were pushed. Channel implementations
// embed a Mailbox to satisfy the ordering guarantees of Channel.
type Mailbox struct {
	cond   *sync.Cond
	items  []delivery
	closed bool

	mu       sync.Mutex
	handler  EventHandler
	statusCb StatusHandler
}

// NewMailbox creates a mailbox and starts its delivery goroutine. The
// goroutine exits after the final status pushed by Close.
func NewMailbox() *Mailbox {
	m := &Mailbox{cond: sync.NewCond(&sync.Mutex{})}
	go m.loop()
	return m
}

// SetEventHandler sets the handler for later deliveries.
func (m *Mailbox) SetEventHandler(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// SetStatusHandler sets the status callback for later deliveries.
func (m *Mailbox) SetStatusHandler(cb StatusHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCb = cb
}

// PushEvent queues an event.
func (m *Mailbox) PushEvent(ev Event) {
	m.push(delivery{event: &ev})
}

// PushStatus queues a status transition.
func (m *Mailbox) PushStatus(s Status, err error) {
	m.push(delivery{status: s, err: err})
}

// Close queues a final status transition. Items pushed afterwards are dropped.
func (m *Mailbox) Close(s Status, err error) {
	m.push(delivery{status: s, err: err, final: true})
}

func (m *Mailbox) push(d delivery) {
	m.cond.L.Lock()
	if m.closed {
		m.cond.L.Unlock()
		return
	}
	m.items = append(m.items, d)
	if d.final {
		m.closed = true
	}
	m.cond.L.Unlock()
	m.cond.Signal()
}

func (m *Mailbox) pop() delivery {
	m.cond.L.Lock()
	defer m.cond.L.Unlock()
	for len(m.items) == 0 {
		m.cond.Wait()
	}
	d := m.items[0]
	m.items[0] = delivery{}
	m.items = m.items[1:]
	return d
}

func (m *Mailbox) loop() {
	for {
		d := m.pop()
		m.deliver(d)
		if d.final {
			return
		}
	}
}

func (m *Mailbox) deliver(d delivery) {
	// A panicking handler must not stop delivery of later items.
	defer func() { _ = recover() }()

	m.mu.Lock()
	handler := m.handler
	statusCb := m.statusCb
	m.mu.Unlock()

	if d.event != nil {
		if handler != nil {
			handler(*d.event)
		}
		return
	}
	if statusCb != nil {
		statusCb(d.status, d.err)
	}
}
