package changes

import (
	"fmt"

	"github.com/orgdesk/realtime-go/pkg/record"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Listeners is the set of typed callbacks for one subscription. Any field may
// be nil.
type Listeners struct {
	// Collection, when set, drops change events for other collections.
	Collection string

	OnInsert    func(rec record.Record) error
	OnUpdate    func(rec, previous record.Record) error
	OnDelete    func(rec record.Record) error
	OnBroadcast func(name string, payload map[string]any) error
	OnError     func(err error)
}

// Dispatch routes one transport event to the matching callback.
//
// Presence events are ignored. Errors and panics from callbacks are reported
// to OnError wrapped in a *ListenerError; a panic inside OnError itself is
// swallowed.
func Dispatch(ev transport.Event, l Listeners) {
	switch ev.Kind {
	case transport.KindChange:
		if ev.Change == nil {
			l.Fail(&MalformedEventError{Reason: "change event without payload"})
			return
		}
		ce, err := Translate(*ev.Change)
		if err != nil {
			l.Fail(err)
			return
		}
		l.deliver(ce)
	case transport.KindBroadcast:
		if ev.Broadcast == nil || l.OnBroadcast == nil {
			return
		}
		b := ev.Broadcast
		l.invoke("OnBroadcast", func() error { return l.OnBroadcast(b.Event, b.Payload) })
	}
}

// Deliver invokes the callback matching an already translated event.
func (l Listeners) Deliver(ce ChangeEvent) {
	l.deliver(ce)
}

func (l Listeners) deliver(ce ChangeEvent) {
	if l.Collection != "" && ce.Collection != l.Collection {
		return
	}

	switch ce.Operation {
	case Created:
		if l.OnInsert != nil {
			l.invoke("OnInsert", func() error { return l.OnInsert(ce.Record) })
		}
	case Updated:
		if l.OnUpdate != nil {
			l.invoke("OnUpdate", func() error { return l.OnUpdate(ce.Record, ce.PreviousRecord) })
		}
	case Deleted:
		if l.OnDelete != nil {
			l.invoke("OnDelete", func() error { return l.OnDelete(ce.Record) })
		}
	}
}

// Fail reports err to OnError, if set.
func (l Listeners) Fail(err error) {
	if l.OnError == nil || err == nil {
		return
	}
	defer func() { _ = recover() }()
	l.OnError(err)
}

func (l Listeners) invoke(name string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
			}
		}()
		err = fn()
	}()
	if err != nil {
		l.Fail(&ListenerError{Callback: name, Err: err})
	}
}
