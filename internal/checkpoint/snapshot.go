package checkpoint

import (
	"context"
	"fmt"
	"sort"

	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/pkg/types"
)

// BuildFlatSnapshot assembles the complete effective history behind
// sessionID: every message from its rollover ancestors (oldest first),
// followed by sessionID's own messages up to and including boundaryID. If
// boundaryID is empty, all of sessionID's messages are included.
func BuildFlatSnapshot(ctx context.Context, store *session.Store, sessionID, boundaryID string) (*types.FlatSnapshot, error) {
	chain, err := sessionChain(ctx, store, sessionID)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: session chain: %w", err)
	}

	leaf := chain[len(chain)-1]
	snap := &types.FlatSnapshot{
		SessionID: sessionID,
		Parts:     make(map[string][]types.EncodedPart),
		Budget:    leaf.Budget,
	}

	for _, sess := range chain {
		messages, err := store.GetMessages(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("build snapshot: messages for %s: %w", sess.ID, err)
		}

		for _, msg := range messages {
			snap.Messages = append(snap.Messages, *msg)

			parts, err := store.GetParts(ctx, msg.ID)
			if err != nil {
				return nil, fmt.Errorf("build snapshot: parts for %s: %w", msg.ID, err)
			}
			for _, p := range parts {
				ep, err := types.EncodePart(p)
				if err != nil {
					return nil, fmt.Errorf("build snapshot: encode part %s: %w", p.PartID(), err)
				}
				snap.Parts[msg.ID] = append(snap.Parts[msg.ID], ep)
			}

			if sess.ID == sessionID && boundaryID != "" && msg.ID == boundaryID {
				return snap, nil
			}
		}
	}

	return snap, nil
}

// sessionChain walks a session's ContinuedFrom links back to the root and
// returns the chain oldest-first, sessionID last.
func sessionChain(ctx context.Context, store *session.Store, sessionID string) ([]*types.Session, error) {
	var chain []*types.Session

	cur, err := store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for {
		chain = append(chain, cur)
		if cur.ContinuedFrom == nil {
			break
		}
		cur, err = store.Get(ctx, *cur.ContinuedFrom)
		if err != nil {
			return nil, fmt.Errorf("continuation ancestor %s: %w", *chain[len(chain)-1].ContinuedFrom, err)
		}
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// materialize copies a snapshot's messages and parts into a brand new
// session, used by both Restore and Branch. Message ids are kept as-is;
// only SessionID is rewritten, matching session.Store.Fork's convention.
func materialize(ctx context.Context, store *session.Store, snap *types.FlatSnapshot, into *types.Session) error {
	messages := append([]types.Message(nil), snap.Messages...)
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	for _, msg := range messages {
		copied := msg
		copied.SessionID = into.ID
		if err := store.AddMessage(ctx, &copied); err != nil {
			return fmt.Errorf("materialize: add message %s: %w", msg.ID, err)
		}

		for _, ep := range snap.Parts[msg.ID] {
			part, err := ep.Decode()
			if err != nil {
				return fmt.Errorf("materialize: decode part for %s: %w", msg.ID, err)
			}
			if err := store.AddPart(ctx, clonePartForSession(part, into.ID)); err != nil {
				return fmt.Errorf("materialize: add part for %s: %w", msg.ID, err)
			}
		}
	}
	return nil
}

// clonePartForSession rewrites a decoded part's SessionID, mirroring
// session.Store's unexported helper of the same shape (Fork needs the
// identical rewrite but the type isn't exported across the package
// boundary).
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
