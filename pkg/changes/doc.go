// Package changes translates transport change payloads into neutral change
// events and dispatches them to typed listener callbacks.
//
// Translate is pure. Dispatch never lets a failure escape: malformed
// payloads, listener panics and listener errors all surface through
// Listeners.OnError, so one faulty callback cannot stop a channel's delivery
// loop.
package changes
