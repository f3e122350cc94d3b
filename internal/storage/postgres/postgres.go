package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wafflecomposite/peakstranding-server/internal/storage"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const structureColumns = "id, user_id, username, map_id, scene, segment, prefab, payload, likes, created_at"

func (s *Store) Create(ctx context.Context, st storage.Structure, maxPerScene int) (storage.Structure, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Structure{}, fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	// Serialize concurrent submits into the same (scene, user) bucket so the
	// prune below always sees the latest committed bucket contents. Unrelated
	// buckets hash to different lock keys and proceed in parallel.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2::text, 0))`,
		st.Scene, st.UserID,
	); err != nil {
		return storage.Structure{}, fmt.Errorf("lock bucket: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
INSERT INTO structures (user_id, username, map_id, scene, segment, prefab, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
RETURNING id, likes, created_at`,
		st.UserID,
		st.Username,
		st.MapID,
		st.Scene,
		st.Segment,
		st.Prefab,
		string(st.Payload),
	).Scan(&st.ID, &st.Likes, &st.CreatedAt)
	if err != nil {
		return storage.Structure{}, fmt.Errorf("insert structure: %w", err)
	}

	// Keep the newest maxPerScene rows of the bucket; everything older goes.
	// Ordering DESC by (created_at, id) makes the lowest id among equal
	// timestamps the first to fall off.
	if _, err := tx.ExecContext(ctx, `
DELETE FROM structures
WHERE scene = $1
  AND user_id = $2
  AND id NOT IN (
      SELECT id FROM structures
      WHERE scene = $1 AND user_id = $2
      ORDER BY created_at DESC, id DESC
      LIMIT $3
  )`,
		st.Scene, st.UserID, maxPerScene,
	); err != nil {
		return storage.Structure{}, fmt.Errorf("prune bucket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Structure{}, fmt.Errorf("commit create tx: %w", err)
	}
	return st, nil
}

func (s *Store) Random(ctx context.Context, f storage.RandomFilter, limit int) ([]storage.Structure, error) {
	var mapID sql.NullInt32
	if f.MapID != nil {
		mapID = sql.NullInt32{Int32: *f.MapID, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+structureColumns+`
FROM structures
WHERE scene = $1
  AND ($2::int IS NULL OR map_id = $2)
  AND prefab <> ALL (string_to_array($3, ','))
ORDER BY random()
LIMIT $4`,
		f.Scene,
		mapID,
		strings.Join(f.ExcludePrefabs, ","),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("random structures: %w", err)
	}
	defer rows.Close()

	out := make([]storage.Structure, 0, limit)
	for rows.Next() {
		st, err := scanStructure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan structure: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate structures: %w", err)
	}
	return out, nil
}

func (s *Store) AddLikes(ctx context.Context, id int64, liker int64, delta int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin like tx: %w", err)
	}
	defer tx.Rollback()

	var owner int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM structures WHERE id = $1 FOR UPDATE`, id,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock structure: %w", err)
	}
	if owner == liker {
		return 0, storage.ErrSelfLike
	}

	var likes int64
	err = tx.QueryRowContext(ctx,
		`UPDATE structures SET likes = likes + $2 WHERE id = $1 RETURNING likes`,
		id, delta,
	).Scan(&likes)
	if err != nil {
		return 0, fmt.Errorf("update likes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (user_id, likes_sent)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET likes_sent = users.likes_sent + EXCLUDED.likes_sent`,
		liker, delta,
	); err != nil {
		return 0, fmt.Errorf("credit liker: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (user_id, likes_received)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET likes_received = users.likes_received + EXCLUDED.likes_received`,
		owner, delta,
	); err != nil {
		return 0, fmt.Errorf("credit owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit like tx: %w", err)
	}
	return likes, nil
}

func (s *Store) SceneCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scene, COUNT(*) FROM structures GROUP BY scene ORDER BY scene`)
	if err != nil {
		return nil, fmt.Errorf("scene counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var scene string
		var n int64
		if err := rows.Scan(&scene, &n); err != nil {
			return nil, fmt.Errorf("scan scene count: %w", err)
		}
		counts[scene] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scene counts: %w", err)
	}
	return counts, nil
}

func scanStructure(rows *sql.Rows) (storage.Structure, error) {
	var st storage.Structure
	var payload []byte
	if err := rows.Scan(
		&st.ID,
		&st.UserID,
		&st.Username,
		&st.MapID,
		&st.Scene,
		&st.Segment,
		&st.Prefab,
		&payload,
		&st.Likes,
		&st.CreatedAt,
	); err != nil {
		return storage.Structure{}, err
	}
	if len(payload) > 0 {
		st.Payload = json.RawMessage(payload)
	}
	return st, nil
}
