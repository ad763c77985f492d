// Package session implements the session store and manager (C2): durable
// CRUD for sessions and their messages/parts, parent/child lineage, and the
// rollover operation that opens a continuation session once a session's
// DIALOG budget is exhausted.
//
// A Session's messages and parts are stored under their own keys
// (internal/storage paths "message/<sessionID>/<id>" and
// "part/<messageID>/<id>") rather than embedded in the session record, so a
// long-running session never requires rewriting its whole history to
// append one message. Session records themselves are indexed by
// internal/storage's SessionIndex so Get/List/Children don't need to scan
// every project directory on disk.
//
// Store does not talk to an LLM gateway or a tool registry; turn execution
// is internal/engine's job, and message/part streaming assembly is
// internal/conversation's. Store only owns the data that outlives a single
// turn.
package session
