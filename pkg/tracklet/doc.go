// Package tracklet is an embedded, client-side event tracking and
// delivery engine. It accepts semantic events from many concurrent
// call sites, validates and enriches them, queues them durably, and
// delivers them to a remote collector in batched, compressed,
// encrypted payloads with at-least-once semantics.
//
// The engine is explicitly constructed and dependency-injected; there
// is no process-wide singleton. A minimal embedding:
//
//	opts, err := config.Resolve(config.New(map[string]any{
//		"api_key":  "key",
//		"endpoint": "https://collector.example.com/v1/batch",
//	}))
//	if err != nil { ... }
//
//	engine, err := tracklet.New(opts)
//	if err != nil { ... }
//	defer engine.Stop(context.Background())
//
//	engine.StartSession()
//	engine.Track("signup_completed", event.NewProperties().
//		Set("plan", event.String("pro")))
//
// Track returns once the event is durably queued, never waiting on the
// network. Delivery ordering is FIFO with a single batch in flight at
// a time; transient failures retry with capped, jittered exponential
// backoff, and the queue is bounded with a drop-oldest overflow policy.
package tracklet
