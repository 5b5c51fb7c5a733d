package streams

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

var _ live.Store = (*SQLiteRepository)(nil)

// SQLiteRepository persists live streams in an embedded SQLite database for single-node deployments.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a database opened with database.NewSQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s models.LiveStream) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO live_streams (`+streamColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)
		ON CONFLICT (stream_id) DO NOTHING`,
		s.ID, s.HostUsername, s.Views, s.Likes, s.CommentCount, s.IsLive, s.LiveSince.UTC(), utcPtr(s.EndedAt))
	return err
}

func (r *SQLiteRepository) UpdateSession(ctx context.Context, id string, u models.StreamUpdate) error {
	if u.Empty() {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE live_streams SET
		views = MAX(views, COALESCE(?2, views)),
		likes = MAX(likes, COALESCE(?3, likes)),
		comment_count = MAX(comment_count, COALESCE(?4, comment_count)),
		ended_at = COALESCE(ended_at, ?5),
		is_live = is_live AND ?5 IS NULL
		WHERE stream_id = ?1`,
		id, u.Views, u.Likes, u.CommentCount, utcPtr(u.EndedAt))
	return err
}

func (r *SQLiteRepository) AppendComment(ctx context.Context, c models.Comment) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO live_comments (id, stream_id, username, comment, created_at)
		VALUES (?1, ?2, ?3, ?4, ?5) ON CONFLICT (id) DO NOTHING`,
		c.ID, c.StreamID, c.Username, c.Text, c.CreatedAt.UTC())
	return err
}

func (r *SQLiteRepository) UpsertMembership(ctx context.Context, v models.Viewer) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO live_viewers (stream_id, user_id, joined_at)
		VALUES (?1, ?2, ?3) ON CONFLICT (stream_id, user_id) DO NOTHING`,
		v.StreamID, v.UserID, v.JoinedAt.UTC())
	return err
}

func (r *SQLiteRepository) ListLive(ctx context.Context) ([]models.LiveStream, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+streamColumns+` FROM live_streams
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

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*models.LiveStream, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM live_streams WHERE stream_id = ?1`, id)
	s, err := scanStream(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) ListComments(ctx context.Context, streamID string, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, stream_id, username, comment, created_at FROM (
		SELECT id, stream_id, username, comment, created_at FROM live_comments
		WHERE stream_id = ?1 ORDER BY id DESC LIMIT ?2
	) ORDER BY id`, streamID, limit)
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

func (r *SQLiteRepository) ListViewers(ctx context.Context, streamID string) ([]models.Viewer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stream_id, user_id, joined_at FROM live_viewers
		WHERE stream_id = ?1 ORDER BY joined_at, user_id`, streamID)
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

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
