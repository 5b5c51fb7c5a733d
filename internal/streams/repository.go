package streams

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

var _ live.Store = (*Repository)(nil)

// Repository persists live streams, comments and viewers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live stream repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const streamColumns = `stream_id, host_username, views, likes, comment_count, is_live, created_at, ended_at`

// CreateSession inserts a stream. Inserting the same id twice is a no-op.
func (r *Repository) CreateSession(ctx context.Context, s models.LiveStream) error {
	const q = `INSERT INTO live_streams (` + streamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stream_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, s.ID, s.HostUsername, s.Views, s.Likes, s.CommentCount, s.IsLive, s.LiveSince, s.EndedAt)
	return err
}

// UpdateSession applies the non-nil fields of u. Counters only move forward and an end time,
// once set, is kept.
func (r *Repository) UpdateSession(ctx context.Context, id string, u models.StreamUpdate) error {
	if u.Empty() {
		return nil
	}
	const q = `UPDATE live_streams SET
		views = GREATEST(views, COALESCE($2::bigint, views)),
		likes = GREATEST(likes, COALESCE($3::bigint, likes)),
		comment_count = GREATEST(comment_count, COALESCE($4::bigint, comment_count)),
		ended_at = COALESCE(ended_at, $5::timestamptz),
		is_live = is_live AND $5::timestamptz IS NULL
		WHERE stream_id = $1`
	_, err := r.pool.Exec(ctx, q, id, u.Views, u.Likes, u.CommentCount, u.EndedAt)
	return err
}

// AppendComment inserts a comment. Inserting the same id twice is a no-op.
func (r *Repository) AppendComment(ctx context.Context, c models.Comment) error {
	const q = `INSERT INTO live_comments (id, stream_id, username, comment, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, c.ID, c.StreamID, c.Username, c.Text, c.CreatedAt)
	return err
}

// UpsertMembership records the first time a user joined a stream.
func (r *Repository) UpsertMembership(ctx context.Context, v models.Viewer) error {
	const q = `INSERT INTO live_viewers (stream_id, user_id, joined_at)
		VALUES ($1, $2, $3) ON CONFLICT (stream_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, v.StreamID, v.UserID, v.JoinedAt)
	return err
}

// ListLive returns live streams, newest first.
func (r *Repository) ListLive(ctx context.Context) ([]models.LiveStream, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+streamColumns+` FROM live_streams
		WHERE is_live ORDER BY created_at DESC, stream_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LiveStream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetSession returns a stream by id, or nil if it does not exist.
func (r *Repository) GetSession(ctx context.Context, id string) (*models.LiveStream, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamColumns+` FROM live_streams WHERE stream_id = $1`, id)
	s, err := scanStream(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListComments returns the latest limit comments of a stream in posting order.
// A non-positive limit returns all of them.
func (r *Repository) ListComments(ctx context.Context, streamID string, limit int) ([]models.Comment, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	const q = `SELECT id, stream_id, username, comment, created_at FROM (
		SELECT id, stream_id, username, comment, created_at FROM live_comments
		WHERE stream_id = $1 ORDER BY id DESC LIMIT $2
	) latest ORDER BY id`
	rows, err := r.pool.Query(ctx, q, streamID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.StreamID, &c.Username, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// ListViewers returns every user that joined a stream, in join order.
func (r *Repository) ListViewers(ctx context.Context, streamID string) ([]models.Viewer, error) {
	rows, err := r.pool.Query(ctx, `SELECT stream_id, user_id, joined_at FROM live_viewers
		WHERE stream_id = $1 ORDER BY joined_at, user_id`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Viewer
	for rows.Next() {
		var v models.Viewer
		if err := rows.Scan(&v.StreamID, &v.UserID, &v.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStream(row scanner) (models.LiveStream, error) {
	var s models.LiveStream
	err := row.Scan(&s.ID, &s.HostUsername, &s.Views, &s.Likes, &s.CommentCount, &s.IsLive, &s.LiveSince, &s.EndedAt)
	return s, err
}
