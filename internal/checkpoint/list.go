package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/pkg/types"
)

// Get returns a single checkpoint's metadata. It does not load the payload.
func (m *Manager) Get(ctx context.Context, sessionID, checkpointID string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	if err := m.storage.Get(ctx, metaKey(sessionID, checkpointID), &cp); err != nil {
		if err == storage.ErrNotFound {
			return nil, wrapErr(KindNotFound, "get", ErrNotFound)
		}
		return nil, wrapErr(KindNotFound, "get", err)
	}
	return &cp, nil
}

// List returns sessionID's committed checkpoints, most recent first.
// Pending/failed records are never returned.
func (m *Manager) List(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	var out []*types.Checkpoint
	err := m.storage.Scan(ctx, []string{"checkpoint", sessionID}, func(key string, data json.RawMessage) error {
		var cp types.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return err
		}
		if cp.State == "committed" {
			out = append(out, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %s: %w", sessionID, err)
	}
	sortByCreatedDesc(out)
	return out, nil
}

func sortByCreatedDesc(cps []*types.Checkpoint) {
	for i := 1; i < len(cps); i++ {
		for j := i; j > 0 && cps[j-1].Created < cps[j].Created; j-- {
			cps[j-1], cps[j] = cps[j], cps[j-1]
		}
	}
}

// loadPayload fetches and decodes a checkpoint's flat snapshot, verifying it
// against the metadata record's content hash.
func (m *Manager) loadPayload(ctx context.Context, cp *types.Checkpoint) (*types.FlatSnapshot, error) {
	var wrapper payloadWrapper
	if err := m.storage.Get(ctx, payloadKey(cp.SessionID, cp.ID), &wrapper); err != nil {
		return nil, wrapErr(KindRestoreFailed, "load payload", err)
	}

	sum := sha256.Sum256(wrapper.Data)
	if hex.EncodeToString(sum[:]) != cp.PayloadHash {
		return nil, wrapErr(KindRestoreFailed, "load payload", fmt.Errorf("payload hash mismatch for checkpoint %s", cp.ID))
	}

	raw, err := gzipDecompress(wrapper.Data)
	if err != nil {
		return nil, wrapErr(KindRestoreFailed, "load payload", err)
	}

	var snap types.FlatSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, wrapErr(KindRestoreFailed, "load payload", err)
	}
	return &snap, nil
}
