// Package engine implements the reasoning engine (C5): the act/observe loop
// that drives one turn of a conversation to completion. It asks
// internal/conversation to prepare a request, streams a gateway's reply
// through a Handle, extracts tool calls, dispatches them through
// internal/tool under internal/permission's policy, and repeats until a
// stop condition fires.
//
// The engine owns no persistent state of its own; everything it reads or
// writes lives in the session store, via the conversation manager. A Run
// call is the unit of cooperative cancellation: ctx cancellation is checked
// at every suspension point (before a gateway call, between stream chunks,
// before each tool call) rather than torn down mid-step.
package engine
