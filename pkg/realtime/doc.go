// Package realtime bundles the subscription registry, presence tracker,
// conflict resolver and health monitor into one Engine per user session.
//
// Typical lifecycle:
//
//	engine := realtime.New(t, realtime.WithLogger(logger))
//	defer engine.Cleanup()
//
//	unsub, err := engine.Subscribe(ctx, "org:42", changes.Listeners{
//	    OnUpdate: func(rec, prev record.Record) error { ... },
//	})
//
// Engines do not share state. Two sessions on the same transport see each
// other only through the transport.
package realtime
