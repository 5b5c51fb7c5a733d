package live

import (
	"context"

	"github.com/aura-live/backend/internal/models"
)

// Store is the durable mirror of live streams, comments and viewers.
// Implementations must make every write idempotent by key so that retries are safe.
type Store interface {
	CreateSession(ctx context.Context, s models.LiveStream) error
	// UpdateSession applies the non-nil fields of u. Counter fields never move backwards.
	UpdateSession(ctx context.Context, id string, u models.StreamUpdate) error
	AppendComment(ctx context.Context, c models.Comment) error
	// UpsertMembership records that a user joined a stream; inserting twice is a no-op.
	UpsertMembership(ctx context.Context, v models.Viewer) error
	ListLive(ctx context.Context) ([]models.LiveStream, error)
	// GetSession returns nil, nil when the stream does not exist.
	GetSession(ctx context.Context, id string) (*models.LiveStream, error)
	ListComments(ctx context.Context, streamID string, limit int) ([]models.Comment, error)
	ListViewers(ctx context.Context, streamID string) ([]models.Viewer, error)
}
