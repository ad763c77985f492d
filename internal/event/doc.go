/*
Package event provides a type-safe pub/sub event system for Penguin's agent
core.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
maintaining direct-call semantics to preserve type information. It supports
both synchronous and asynchronous publishing.

# Event Types

Session events:
  - session.created / session.updated / session.deleted
  - session.compacted: context-window manager trimmed or summarized a session
  - session.rolled_over: a session's DIALOG budget was exhausted and
    continued into a fresh session

Message events:
  - message.created / message.updated / message.removed
  - part.updated: a message part changed, typically during streaming

Context-window events:
  - context_window.clamped: a sub-agent's resolved window was reduced below
    its parent's
  - context_window.trimmed: the trim algorithm dropped or truncated content

Checkpoint events:
  - checkpoint.captured / checkpoint.restored / checkpoint.branched
  - checkpoint.failed / checkpoint.expired

Engine events:
  - engine.stop_condition: a turn loop stop condition fired
  - engine.tool_invoked

Other:
  - file.edited
  - permission.required / permission.resolved

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.MessageUpdated,
		Data: event.MessageUpdatedData{Info: message},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		log.Info().Str("id", data.Info.ID).Msg("session created")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers run synchronously in the publisher's
goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber
  - Never acquire locks that the publisher might hold

# Metrics

EnableMetrics attaches a Prometheus CounterVec ("penguin_event_events_total",
labeled by type) to a bus, for operators who want event-volume visibility
without subscribing a handler:

	event.EnableMetrics(prometheus.DefaultRegisterer)

# Custom Event Bus

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.SessionCreated, handler)
	bus.PublishSync(event.Event{Type: event.SessionCreated, Data: data})

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is safe for concurrent use. Both publishing and subscribing
are protected by internal synchronization.

# Integration with Watermill

	pubsub := event.PubSub()
	// Use watermill features like middleware, routing, etc.
*/
package event
