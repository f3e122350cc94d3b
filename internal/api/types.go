package api

import (
	"encoding/json"
	"time"
)

// SubmitStructureRequest is one player-built structure as the game client
// submits it. Payload is the opaque placement blob (pose, rope geometry,
// flags); the server validates its size and JSON shape but never interprets
// it.
type SubmitStructureRequest struct {
	Username string          `json:"username,omitempty"`
	MapID    int32           `json:"map_id"`
	Scene    string          `json:"scene"`
	Segment  int32           `json:"segment"`
	Prefab   string          `json:"prefab"`
	Payload  json.RawMessage `json:"payload"`
}

type StructureResponse struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username,omitempty"`
	MapID     int32           `json:"map_id"`
	Scene     string          `json:"scene"`
	Segment   int32           `json:"segment"`
	Prefab    string          `json:"prefab"`
	Payload   json.RawMessage `json:"payload"`
	Likes     int64           `json:"likes"`
	CreatedAt time.Time       `json:"created_at"`
}

// LikeStructureRequest carries the like delta. Count may be omitted (one
// like); the server clamps it server-side regardless of what the client says.
type LikeStructureRequest struct {
	Count *int64 `json:"count,omitempty"`
}

type LikeStructureResponse struct {
	ID    int64 `json:"id"`
	Likes int64 `json:"likes"`
}
