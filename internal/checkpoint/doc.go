// Package checkpoint implements the checkpoint/snapshot manager (C4): it
// flattens a session's message/part history (and that of any rollover
// ancestors) into a compressed, content-hashed payload, durably commits it
// through a bounded async worker queue, and later restores or branches from
// it.
//
// A Manager owns one worker goroutine that drains a bounded channel of
// capture jobs. Capture enqueues a job and blocks its caller until the
// worker has committed (or failed) the payload, so callers observe a
// synchronous-looking API while the actual disk I/O and compression happen
// off the calling goroutine. Manual, branch, and rollback captures are
// never dropped for backpressure; only automatic (pre_tool/post_turn/
// pre_compact) captures are candidates for the drop-oldest policy that
// keeps the queue bounded when the worker falls behind.
//
// Restore and Branch never mutate the session a checkpoint was taken
// against. Both materialize a brand new Session from the checkpoint's
// payload and hand it back to the caller; the caller (internal/engine, or a
// CLI command) is responsible for re-pointing whatever "active session"
// reference it holds.
package checkpoint
