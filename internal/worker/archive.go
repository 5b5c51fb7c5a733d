package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/queue"
	"github.com/aura-live/backend/pkg/storage"
)

// CommentSource reads a stream's comment history.
type CommentSource interface {
	ListComments(ctx context.Context, streamID string, limit int) ([]models.Comment, error)
}

// Archiver stores an archive document under key and returns its location.
type Archiver interface {
	UploadArchive(ctx context.Context, key string, body []byte) (string, error)
}

// Archive is the document written for an ended stream.
type Archive struct {
	StreamID     string           `json:"stream_id"`
	HostUsername string           `json:"host_username"`
	EndedAt      time.Time        `json:"ended_at"`
	ArchivedAt   time.Time        `json:"archived_at"`
	Comments     []models.Comment `json:"comments"`
}

// ArchiveProcessor copies the comment log of an ended stream to object storage.
// Uploads overwrite the same key, so reprocessing a job is safe.
type ArchiveProcessor struct {
	comments CommentSource
	archiver Archiver
	now      func() time.Time
	logger   *zap.Logger
}

// NewArchiveProcessor creates an archive processor.
func NewArchiveProcessor(comments CommentSource, archiver Archiver, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{comments: comments, archiver: archiver, now: time.Now, logger: logger}
}

// Process archives one stream.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	var payload queue.ArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	comments, err := p.comments.ListComments(ctx, payload.StreamID, 0)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	body, err := json.Marshal(Archive{
		StreamID:     payload.StreamID,
		HostUsername: payload.HostUsername,
		EndedAt:      payload.EndedAt,
		ArchivedAt:   p.now().UTC(),
		Comments:     comments,
	})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	key := storage.ArchiveKey(payload.StreamID)
	url, err := p.archiver.UploadArchive(ctx, key, body)
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	p.logger.Info("comment archive uploaded", zap.String("stream_id", payload.StreamID), zap.Int("comments", len(comments)), zap.String("url", url))
	return nil
}
