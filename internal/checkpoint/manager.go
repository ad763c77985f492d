package checkpoint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/logging"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/pkg/types"
)

const defaultQueueCapacity = 64

// errDropped is returned to a queued job's caller when its slot is
// reclaimed by the drop-oldest backpressure policy before the worker got to
// it.
var errDropped = errors.New("checkpoint capture dropped under backpressure")

// captureJob is one request on the worker queue.
type captureJob struct {
	ctx       context.Context
	sessionID string
	messageID string
	reason    types.CheckpointReason
	label     string
	done      chan captureResult
}

type captureResult struct {
	checkpoint *types.Checkpoint
	err        error
}

// Manager is the checkpoint/snapshot manager (C4). It owns the capture
// worker, the payload store, and retention GC.
type Manager struct {
	storage  *storage.Storage
	sessions *session.Store
	config   types.CheckpointConfig

	queue chan *captureJob

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc

	cron *cron.Cron

	mu                   sync.Mutex
	consecutiveFailures  int
	autoCapturesDisabled bool
}

// New constructs a Manager. Call Start to launch its worker goroutine and
// retention scheduler; an un-started Manager's Capture calls will block
// until Start is called (or ctx is cancelled).
func New(store *storage.Storage, sessions *session.Store, cfg types.CheckpointConfig) *Manager {
	capacity := cfg.MaxAuto
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Manager{
		storage:  store,
		sessions: sessions,
		config:   cfg,
		queue:    make(chan *captureJob, capacity),
	}
}

// Start launches the capture worker and, if retention is configured, a
// periodic GC schedule. ctx governs the worker and scheduler's lifetime;
// cancelling it (or calling Stop) shuts both down.
func (m *Manager) Start(ctx context.Context) {
	groupCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(groupCtx)
	m.groupCtx = gctx
	m.cancel = cancel
	m.group = group

	group.Go(func() error {
		return m.run(gctx)
	})

	if m.config.Enabled && (hasRetentionPolicy(m.config.Retention) || m.config.MaxAuto > 0) {
		m.cron = cron.New()
		m.cron.AddFunc("@hourly", func() {
			if err := m.sweepAllSessions(context.Background()); err != nil {
				logging.Warn().Err(err).Msg("checkpoint: periodic retention sweep failed")
			}
		})
		m.cron.Start()
	}
}

// Stop shuts down the worker and scheduler, waiting for any in-flight
// capture to finish.
func (m *Manager) Stop() error {
	if m.cron != nil {
		m.cron.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.group != nil {
		if err := m.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func hasRetentionPolicy(r types.RetentionConfig) bool {
	return r.KeepAllHours > 0 || r.KeepEveryNth > 0 || r.MaxAgeDays > 0
}

func isAutoReason(r types.CheckpointReason) bool {
	switch r {
	case types.CheckpointPreTool, types.CheckpointPostTurn, types.CheckpointPreCompact:
		return true
	default:
		return false
	}
}

// Capture enqueues a checkpoint and blocks until the worker has committed
// (or failed) it. Manual, branch, and rollback captures always get a queue
// slot; automatic captures may be dropped under backpressure or skipped
// entirely once the circuit breaker trips after repeated failures.
func (m *Manager) Capture(ctx context.Context, sessionID, messageID string, reason types.CheckpointReason, label string) (*types.Checkpoint, error) {
	if !m.config.Enabled {
		return nil, nil
	}
	if isAutoReason(reason) && m.autoDisabled() {
		return nil, nil
	}

	job := &captureJob{
		ctx:       ctx,
		sessionID: sessionID,
		messageID: messageID,
		reason:    reason,
		label:     label,
		done:      make(chan captureResult, 1),
	}
	if err := m.enqueue(job); err != nil {
		return nil, err
	}

	select {
	case res := <-job.done:
		return res.checkpoint, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) autoDisabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoCapturesDisabled
}

func (m *Manager) recordOutcome(err error, auto bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.consecutiveFailures++
		if auto && m.consecutiveFailures >= 3 {
			m.autoCapturesDisabled = true
		}
		return
	}
	m.consecutiveFailures = 0
	m.autoCapturesDisabled = false
}

// enqueue places job on the queue, applying the drop-oldest backpressure
// policy for automatic reasons: if the queue is full, the oldest queued
// automatic job is evicted to make room. Manual/branch/rollback jobs block
// for a slot instead of being dropped or evicting anything.
func (m *Manager) enqueue(job *captureJob) error {
	select {
	case m.queue <- job:
		return nil
	default:
	}

	if !isAutoReason(job.reason) {
		select {
		case m.queue <- job:
			return nil
		case <-job.ctx.Done():
			return job.ctx.Err()
		}
	}

	select {
	case dropped := <-m.queue:
		logging.Warn().
			Str("sessionID", dropped.sessionID).
			Str("reason", string(dropped.reason)).
			Msg("checkpoint: dropping oldest auto checkpoint under backpressure")
		dropped.done <- captureResult{err: errDropped}
	default:
	}

	select {
	case m.queue <- job:
		return nil
	default:
		return fmt.Errorf("checkpoint: capture queue full")
	}
}

func (m *Manager) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.queue:
			m.process(job)
		}
	}
}

func (m *Manager) process(job *captureJob) {
	cp, err := m.capture(job.ctx, job.sessionID, job.messageID, job.reason, job.label)
	m.recordOutcome(err, isAutoReason(job.reason))

	if err != nil {
		event.Publish(event.Event{
			Type: event.CheckpointFailed,
			Data: event.CheckpointFailedData{SessionID: job.sessionID, Reason: err.Error()},
		})
	}
	job.done <- captureResult{checkpoint: cp, err: err}
}

func (m *Manager) capture(ctx context.Context, sessionID, messageID string, reason types.CheckpointReason, label string) (*types.Checkpoint, error) {
	snap, err := BuildFlatSnapshot(ctx, m.sessions, sessionID, messageID)
	if err != nil {
		return nil, wrapErr(KindCaptureFailed, "capture", err)
	}
	if messageID == "" && len(snap.Messages) > 0 {
		messageID = snap.Messages[len(snap.Messages)-1].ID
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, wrapErr(KindCaptureFailed, "capture", err)
	}
	compressed, err := gzipCompress(raw)
	if err != nil {
		return nil, wrapErr(KindCaptureFailed, "capture", err)
	}
	sum := sha256.Sum256(compressed)

	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(KindCaptureFailed, "capture", err)
	}

	cp := &types.Checkpoint{
		ID:          ulid.Make().String(),
		SessionID:   sessionID,
		ProjectID:   sess.ProjectID,
		MessageID:   messageID,
		Reason:      reason,
		Label:       label,
		Created:     time.Now().UnixMilli(),
		PayloadSize: int64(len(compressed)),
		PayloadHash: hex.EncodeToString(sum[:]),
		State:       "committed",
	}

	if err := m.storage.Put(ctx, payloadKey(sessionID, cp.ID), payloadWrapper{Data: compressed}); err != nil {
		return nil, wrapErr(KindCaptureFailed, "capture", err)
	}
	if err := m.storage.Put(ctx, metaKey(sessionID, cp.ID), cp); err != nil {
		return nil, wrapErr(KindCaptureFailed, "capture", err)
	}

	event.Publish(event.Event{Type: event.CheckpointCaptured, Data: event.CheckpointCapturedData{Checkpoint: cp}})

	if hasRetentionPolicy(m.config.Retention) || m.config.MaxAuto > 0 {
		if err := m.sweepSession(ctx, sessionID); err != nil {
			logging.Warn().Err(err).Str("sessionID", sessionID).Msg("checkpoint: opportunistic retention sweep failed")
		}
	}

	return cp, nil
}

// payloadWrapper stores compressed bytes under a JSON field since
// storage.Storage only marshals JSON (a bare []byte would base64-encode
// transparently, this just names the field for clarity).
type payloadWrapper struct {
	Data []byte `json:"data"`
}

func metaKey(sessionID, id string) []string {
	return []string{"checkpoint", sessionID, id}
}

func payloadKey(sessionID, id string) []string {
	return []string{"checkpoint_payload", sessionID, id}
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
