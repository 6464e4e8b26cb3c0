package snapshot

import (
	"context"
	"errors"
)

// Logical keys under which the two config artifacts are persisted.
const (
	PolicyKey    = "control_surface_policy_v1"
	ReferenceKey = "orderflow.referencePack"
)

var ErrNotFound = errors.New("snapshot not found")

// Store persists finalized config snapshots. Implementations must serialize Save calls.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Clear(ctx context.Context, key string) error
}
