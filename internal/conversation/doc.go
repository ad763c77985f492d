// Package conversation implements the conversation manager (C3): assembling
// a session's message/part history into a request the reasoning engine can
// send to a gateway, and accumulating a gateway's streamed response back
// into messages and parts.
//
// A turn moves through prepare (load history, build the system prompt,
// resolve the token budget, trim to fit) and then through a Handle's
// OPEN -> APPENDING -> FINALIZED lifecycle as the assistant's response
// streams in. Conversation owns neither the gateway connection nor the
// retry loop around it; internal/engine drives both and calls back into
// this package to prepare requests and absorb their streamed replies.
package conversation
