package structures

import (
	"encoding/json"
	"errors"
)

const (
	// MaxPrefabLength and MaxUsernameLength mirror the database CHECK
	// constraints on the structures table.
	MaxPrefabLength   = 50
	MaxUsernameLength = 50

	// MaxPayloadBytes bounds the opaque placement blob (positions, rotations,
	// rope geometry). The server never interprets it, so this is purely a
	// safety valve against oversized rows.
	MaxPayloadBytes = 16 * 1024

	// MaxLikeDelta caps how many likes a single request may add.
	MaxLikeDelta = 100
)

var (
	ErrInvalidScene    = errors.New("invalid scene")
	ErrInvalidPrefab   = errors.New("invalid prefab")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidLikes    = errors.New("invalid like count")
)

// Submission carries the client-supplied fields of a new structure, before
// the server stamps identity, id and creation time.
type Submission struct {
	Username string
	MapID    int32
	Scene    string
	Segment  int32
	Prefab   string
	Payload  json.RawMessage
}

// Validate checks a submission against the configured scene-length cap and
// the fixed field limits. The payload must be a JSON object; its contents
// belong to the game client and are not inspected.
func (s Submission) Validate(maxSceneLength int) error {
	if err := ValidateScene(s.Scene, maxSceneLength); err != nil {
		return err
	}
	if s.Prefab == "" || len(s.Prefab) > MaxPrefabLength {
		return ErrInvalidPrefab
	}
	if len(s.Username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if len(s.Payload) == 0 || len(s.Payload) > MaxPayloadBytes {
		return ErrInvalidPayload
	}
	if !json.Valid(s.Payload) || s.Payload[0] != '{' {
		return ErrInvalidPayload
	}
	return nil
}

func ValidateScene(scene string, maxSceneLength int) error {
	if scene == "" || len(scene) > maxSceneLength {
		return ErrInvalidScene
	}
	return nil
}

// ClampRandomLimit resolves the requested sample size: def when omitted,
// otherwise clamped into [1, max]. Asking for too many is not an error; the
// caller simply gets the cap.
func ClampRandomLimit(requested *int, def, max int) int {
	if requested == nil {
		if def > max {
			return max
		}
		return def
	}
	n := *requested
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// NormalizeLikeDelta resolves the like increment for one request: 1 when
// omitted, clamped to MaxLikeDelta, rejected when zero or negative.
func NormalizeLikeDelta(count *int64) (int64, error) {
	if count == nil {
		return 1, nil
	}
	n := *count
	if n <= 0 {
		return 0, ErrInvalidLikes
	}
	if n > MaxLikeDelta {
		return MaxLikeDelta, nil
	}
	return n, nil
}
