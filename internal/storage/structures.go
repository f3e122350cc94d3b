package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound: the structure id does not exist (possibly evicted since
	// the client last saw it).
	ErrNotFound = errors.New("structure not found")

	// ErrSelfLike: players cannot like their own structures.
	ErrSelfLike = errors.New("cannot like own structure")
)

// Structure is one stored player-built artifact. Payload is the opaque
// placement blob (pose, rope geometry, flags) owned by the game client; the
// server stores and returns it untouched.
type Structure struct {
	ID        int64
	UserID    int64
	Username  string
	MapID     int32
	Scene     string
	Segment   int32
	Prefab    string
	Payload   json.RawMessage
	Likes     int64
	CreatedAt time.Time
}

// RandomFilter narrows a random sample. Scene is required; MapID and
// ExcludePrefabs are optional refinements the game client uses to avoid
// re-downloading content it already has.
type RandomFilter struct {
	Scene          string
	MapID          *int32
	ExcludePrefabs []string
}

// StructuresStore is the durable engine behind the API. Implementations must
// keep every (scene, user) bucket at or under the configured cap with no
// over-capacity state observable to concurrent readers, and must apply like
// increments without lost updates.
type StructuresStore interface {
	// Create inserts s (ID, Likes and CreatedAt are assigned by the store)
	// and, in the same atomic unit, evicts the oldest structures of the
	// (s.Scene, s.UserID) bucket until at most maxPerScene remain. Oldest
	// means smallest CreatedAt, ties broken by smallest ID.
	Create(ctx context.Context, s Structure, maxPerScene int) (Structure, error)

	// Random returns up to limit structures matching f, chosen uniformly
	// without replacement. Fewer than limit matches is not an error.
	Random(ctx context.Context, f RandomFilter, limit int) ([]Structure, error)

	// AddLikes atomically adds delta likes to the structure and credits the
	// liker's sent / the owner's received totals. Returns the new count.
	// Fails with ErrNotFound if id is gone and ErrSelfLike if liker owns it.
	AddLikes(ctx context.Context, id int64, liker int64, delta int64) (int64, error)

	// SceneCounts reports live structures per scene (operator tooling).
	SceneCounts(ctx context.Context) (map[string]int64, error)
}
