package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/queue"
)

// PushProcessor delivers "host is live" notifications to the push gateway.
type PushProcessor struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
	logger     *zap.Logger
}

// NewPushProcessor creates a push processor. An empty gatewayURL makes every job a logged no-op.
func NewPushProcessor(gatewayURL, apiKey string, logger *zap.Logger) *PushProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushProcessor{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Process posts one push job.
func (p *PushProcessor) Process(ctx context.Context, job *queue.Job) error {
	var payload queue.LiveStartedPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.gatewayURL == "" {
		p.logger.Info("push gateway not configured, skipping", zap.String("job_id", job.ID), zap.Int("tokens", len(payload.Tokens)))
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway status: %d", resp.StatusCode)
	}
	p.logger.Info("push delivered", zap.String("job_id", job.ID), zap.Int("tokens", len(payload.Tokens)))
	return nil
}
