package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/pkg/types"
)

const defaultTitlePrefix = "New Session"

// Store is the session store and manager (C2). It owns session records,
// their lineage, and the messages/parts that belong to them.
type Store struct {
	storage *storage.Storage
	index   *storage.SessionIndex
}

// New creates a Store backed by the given storage.
func New(store *storage.Storage) *Store {
	return &Store{storage: store, index: storage.NewSessionIndex(store)}
}

// Create starts a new session rooted at directory. If parentID is non-nil
// the session is a child (e.g. a sub-agent's session) and is excluded from
// title generation.
func (s *Store) Create(ctx context.Context, directory string, parentID *string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	sess := &types.Session{
		ID:        generateID(),
		ProjectID: hashDirectory(directory),
		Directory: directory,
		ParentID:  parentID,
		Title:     defaultTitlePrefix,
		Version:   "1",
		Time:      types.SessionTime{Created: now, Updated: now},
	}

	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}

	event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: sess}})
	return sess, nil
}

// Get retrieves a session by id. It consults the index first and falls
// back to a full scan if the index is stale or missing an entry (e.g. a
// session created by a version of the index that predates this entry).
func (s *Store) Get(ctx context.Context, id string) (*types.Session, error) {
	entries, err := s.index.List(ctx)
	if err == nil {
		for _, e := range entries {
			if e.ID != id {
				continue
			}
			var sess types.Session
			err := s.storage.Get(ctx, []string{"session", projectIDFromDirectory(e.Directory), id}, &sess)
			if err == nil {
				return &sess, nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, wrapErr(KindCorrupted, "get", fmt.Errorf("%w: %w", ErrSessionCorrupted, err))
			}
		}
	}
	return s.findByScan(ctx, id)
}

// findByScan scans every project directory for a session id, used only
// when the index can't resolve one (first run against pre-existing data,
// or a race with an in-flight Create).
func (s *Store) findByScan(ctx context.Context, id string) (*types.Session, error) {
	projects, err := s.storage.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	for _, projectID := range projects {
		var sess types.Session
		err := s.storage.Get(ctx, []string{"session", projectID, id}, &sess)
		if err == nil {
			return &sess, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, wrapErr(KindCorrupted, "get", err)
		}
	}
	return nil, storage.ErrNotFound
}

// Update persists changes to an existing session and republishes its
// index entry and a session.updated event.
func (s *Store) Update(ctx context.Context, sess *types.Session) error {
	sess.Time.Updated = time.Now().UnixMilli()
	if err := s.persist(ctx, sess); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: sess}})
	return nil
}

func (s *Store) persist(ctx context.Context, sess *types.Session) error {
	if err := s.storage.Put(ctx, []string{"session", sess.ProjectID, sess.ID}, sess); err != nil {
		return wrapErr(KindPersistFailed, "persist", fmt.Errorf("%w: put session: %w", ErrPersistenceFailed, err))
	}
	entry := storage.SessionIndexEntry{
		ID:        sess.ID,
		Title:     sess.Title,
		Updated:   sess.Time.Updated,
		Directory: sess.Directory,
	}
	if sess.ParentID != nil {
		entry.ParentID = *sess.ParentID
	}
	if err := s.index.Upsert(ctx, entry); err != nil {
		return wrapErr(KindPersistFailed, "persist", fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}
	return nil
}

// Delete removes a session and its index entry. Its messages and parts are
// left on disk; callers that want full deletion should remove them via
// GetMessages/GetParts before calling Delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, []string{"session", sess.ProjectID, id}); err != nil {
		return err
	}
	if err := s.index.Remove(ctx, id); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.SessionDeleted, Data: event.SessionDeletedData{Info: sess}})
	return nil
}

// List returns every session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*types.Session, error) {
	entries, err := s.index.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Session, 0, len(entries))
	for _, e := range entries {
		var sess types.Session
		if err := s.storage.Get(ctx, []string{"session", projectIDFromDirectory(e.Directory), e.ID}, &sess); err == nil {
			out = append(out, &sess)
		}
	}
	return out, nil
}

// Children returns the direct children of a session (sessions whose
// ParentID is id: sub-agent sessions and forks), most recently updated
// first. Rollover continuations are linked through ContinuedFrom instead
// and are not included; Lineage walks that chain.
func (s *Store) Children(ctx context.Context, id string) ([]*types.Session, error) {
	entries, err := s.index.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Session, 0, len(entries))
	for _, e := range entries {
		var sess types.Session
		if err := s.storage.Get(ctx, []string{"session", projectIDFromDirectory(e.Directory), e.ID}, &sess); err == nil {
			out = append(out, &sess)
		}
	}
	return out, nil
}

// Lineage walks up from id through ContinuedFrom, returning the chain
// starting at the root ancestor and ending at id itself. Unlike ParentID
// (which points at whatever session spawned this one, e.g. a sub-agent's
// caller), ContinuedFrom is the rollover-chain link collect_lineage is
// defined over.
func (s *Store) Lineage(ctx context.Context, id string) ([]*types.Session, error) {
	var chain []*types.Session
	cur := id
	seen := map[string]bool{}
	for cur != "" && !seen[cur] {
		seen[cur] = true
		sess, err := s.Get(ctx, cur)
		if err != nil {
			break
		}
		chain = append([]*types.Session{sess}, chain...)
		if sess.ContinuedFrom == nil {
			break
		}
		cur = *sess.ContinuedFrom
	}
	return chain, nil
}

// Fork creates a new session branching from source at (and including)
// messageID: the new session is an independent copy of source's message
// history up to that point, free to diverge without mutating source. This
// is also the primitive internal/checkpoint's Branch operation builds on.
func (s *Store) Fork(ctx context.Context, sourceID, messageID string) (*types.Session, error) {
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fork: source session: %w", err)
	}

	messages, err := s.GetMessages(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fork: load messages: %w", err)
	}

	now := time.Now().UnixMilli()
	forkID := sourceID
	forked := &types.Session{
		ID:        generateID(),
		ProjectID: source.ProjectID,
		Directory: source.Directory,
		ParentID:  &forkID,
		Title:     source.Title + " (fork)",
		Version:   source.Version,
		Budget:    source.Budget,
		Time:      types.SessionTime{Created: now, Updated: now},
	}
	if err := s.persist(ctx, forked); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		parts, err := s.GetParts(ctx, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("fork: load parts for %s: %w", msg.ID, err)
		}
		copied := *msg
		copied.SessionID = forked.ID
		if err := s.AddMessage(ctx, &copied); err != nil {
			return nil, err
		}
		for _, p := range parts {
			if err := s.AddPart(ctx, clonePartForSession(p, forked.ID)); err != nil {
				return nil, err
			}
		}
		if msg.ID == messageID {
			break
		}
	}

	event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: forked}})
	return forked, nil
}

// Rollover opens a fresh continuation session once from crosses its
// configured message-count boundary. It creates the new session linked via
// ContinuedFrom, copies every SYSTEM and CONTEXT message (with parts) from
// from into it preserving ids, categories, and metadata, appends a SYSTEM
// continuation marker to both sides, and records the forward link on
// from's ContinuedTo.
func (s *Store) Rollover(ctx context.Context, fromID string) (*types.Session, error) {
	from, err := s.Get(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("rollover: source session: %w", err)
	}

	messages, err := s.GetMessages(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("rollover: load messages: %w", err)
	}

	now := time.Now().UnixMilli()
	fromCopy := fromID
	next := &types.Session{
		ID:            generateID(),
		ProjectID:     from.ProjectID,
		Directory:     from.Directory,
		ParentID:      from.ParentID,
		Title:         from.Title,
		Version:       from.Version,
		Budget:        from.Budget,
		ContinuedFrom: &fromCopy,
		Time:          types.SessionTime{Created: now, Updated: now},
	}
	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		if msg.Category != types.CategorySystem && msg.Category != types.CategoryContext {
			continue
		}
		parts, err := s.GetParts(ctx, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("rollover: load parts for %s: %w", msg.ID, err)
		}
		copied := *msg
		copied.SessionID = next.ID
		if err := s.AddMessage(ctx, &copied); err != nil {
			return nil, fmt.Errorf("rollover: copy message %s: %w", msg.ID, err)
		}
		for _, p := range parts {
			if err := s.AddPart(ctx, clonePartForSession(p, next.ID)); err != nil {
				return nil, fmt.Errorf("rollover: copy part for %s: %w", msg.ID, err)
			}
		}
	}

	if err := s.appendContinuationMarker(ctx, fromID,
		fmt.Sprintf("session continued to %s", next.ID),
		map[string]any{"type": "continuation", "continued_to": next.ID}); err != nil {
		return nil, fmt.Errorf("rollover: continuation marker for %s: %w", fromID, err)
	}
	if err := s.appendContinuationMarker(ctx, next.ID,
		fmt.Sprintf("session continued from %s", fromID),
		map[string]any{"type": "continuation", "continued_from": fromID}); err != nil {
		return nil, fmt.Errorf("rollover: continuation marker for %s: %w", next.ID, err)
	}

	from.ContinuedTo = append(from.ContinuedTo, next.ID)
	if err := s.Update(ctx, from); err != nil {
		return nil, err
	}

	event.Publish(event.Event{
		Type: event.SessionRolledOver,
		Data: event.SessionRolledOverData{FromSessionID: fromID, ToSessionID: next.ID},
	})
	return next, nil
}

// appendContinuationMarker appends a SYSTEM message carrying a
// metadata.type = "continuation" marker to sessionID, used by Rollover to
// mark both sides of a rollover boundary.
func (s *Store) appendContinuationMarker(ctx context.Context, sessionID, text string, metadata map[string]any) error {
	now := time.Now().UnixMilli()
	msg := &types.Message{
		ID:        generateID(),
		SessionID: sessionID,
		Role:      "system",
		Category:  types.CategorySystem,
		Time:      types.MessageTime{Created: now},
	}
	if err := s.AddMessage(ctx, msg); err != nil {
		return err
	}
	part := &types.TextPart{
		ID:        generateID(),
		SessionID: sessionID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      text,
		Metadata:  metadata,
	}
	return s.AddPart(ctx, part)
}

// Revert marks a session as paused mid-rollback to messageID (and,
// optionally, a specific checkpoint). internal/checkpoint clears this once
// the restore completes.
func (s *Store) Revert(ctx context.Context, id, messageID string, checkpointID *string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Revert = &types.SessionRevert{MessageID: messageID, CheckpointID: checkpointID}
	return s.Update(ctx, sess)
}

// Unrevert clears an in-progress rollback marker.
func (s *Store) Unrevert(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Revert = nil
	return s.Update(ctx, sess)
}

// SetTitle replaces a session's title unconditionally; it does not check
// for the placeholder title assigned at creation. Callers that generate a title from the first
// user message (internal/engine) should check IsDefaultTitle first so a
// title a user has since set manually is never clobbered.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Title = title
	return s.Update(ctx, sess)
}

// IsDefaultTitle reports whether a title is still the placeholder assigned
// at session creation.
func IsDefaultTitle(title string) bool {
	return title == defaultTitlePrefix
}

// AddMessage persists a message. SessionID must already be set.
func (s *Store) AddMessage(ctx context.Context, msg *types.Message) error {
	if err := s.storage.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.MessageCreated, Data: event.MessageCreatedData{Info: msg}})
	return nil
}

// UpdateMessage persists changes to an existing message.
func (s *Store) UpdateMessage(ctx context.Context, msg *types.Message) error {
	now := time.Now().UnixMilli()
	msg.Time.Updated = &now
	if err := s.storage.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.MessageUpdated, Data: event.MessageUpdatedData{Info: msg}})
	return nil
}

// GetMessages returns all messages for a session in creation order (ULIDs
// sort lexically by creation time).
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.storage.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

// AddPart persists a message part.
func (s *Store) AddPart(ctx context.Context, part types.Part) error {
	if err := s.storage.Put(ctx, []string{"part", part.PartMessageID(), part.PartID()}, part); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.PartUpdated, Data: event.MessagePartUpdatedData{Part: part}})
	return nil
}

// GetParts returns all parts belonging to a message in creation order.
func (s *Store) GetParts(ctx context.Context, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := s.storage.Scan(ctx, []string{"part", messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartID() < parts[j].PartID() })
	return parts, nil
}

// DeleteMessage removes a message and every part that belongs to it.
func (s *Store) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	parts, err := s.GetParts(ctx, messageID)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := s.storage.Delete(ctx, []string{"part", messageID, p.PartID()}); err != nil && err != storage.ErrNotFound {
			return err
		}
	}
	if err := s.storage.Delete(ctx, []string{"message", sessionID, messageID}); err != nil && err != storage.ErrNotFound {
		return err
	}
	event.Publish(event.Event{Type: event.MessageRemoved, Data: event.MessageRemovedData{SessionID: sessionID, MessageID: messageID}})
	return nil
}

func clonePartForSession(p types.Part, sessionID string) types.Part {
	switch v := p.(type) {
	case *types.TextPart:
		c := *v
		c.SessionID = sessionID
		return &c
	case *types.ImagePart:
		c := *v
		c.SessionID = sessionID
		return &c
	case *types.FilePart:
		c := *v
		c.SessionID = sessionID
		return &c
	case *types.ReasoningPart:
		c := *v
		c.SessionID = sessionID
		return &c
	case *types.ToolPart:
		c := *v
		c.SessionID = sessionID
		return &c
	default:
		return p
	}
}

// generateID generates a new ULID, used for both session and message ids.
func generateID() string {
	return ulid.Make().String()
}

// hashDirectory derives a stable project id from a working directory path.
func hashDirectory(directory string) string {
	h := sha256.New()
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// projectIDFromDirectory is an alias kept distinct from hashDirectory at
// call sites that derive a project id from an index entry rather than from
// a freshly created session, so the two concerns can diverge later without
// a rename.
func projectIDFromDirectory(directory string) string {
	return hashDirectory(directory)
}
