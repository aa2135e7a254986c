package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/canvas-studio/engine/internal/metrics"
	"github.com/canvas-studio/engine/internal/store"
	appErr "github.com/canvas-studio/engine/pkg/errors"
	"github.com/canvas-studio/engine/pkg/logger"
)

// TypeCanvasCleanup removes stale duplicates of one (owner, name) canvas.
const TypeCanvasCleanup = "canvas:cleanup"

const (
	cleanupMaxRetry = 3
	cleanupTimeout  = 30 * time.Second
	// Saves arrive every few seconds while editing; one cleanup per window is enough.
	cleanupUniqueFor = time.Minute
)

// CleanupPayload is the task payload for retention cleanup.
type CleanupPayload struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// NewCleanupTask builds a cleanup task for (ownerID, name).
func NewCleanupTask(ownerID, name string) (*asynq.Task, error) {
	b, err := json.Marshal(CleanupPayload{OwnerID: ownerID, Name: name})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal cleanup payload")
	}
	return asynq.NewTask(TypeCanvasCleanup, b,
		asynq.MaxRetry(cleanupMaxRetry),
		asynq.Timeout(cleanupTimeout),
		asynq.Unique(cleanupUniqueFor),
	), nil
}

// CleanupTaskHandler runs retention cleanup against a store.
type CleanupTaskHandler struct {
	store   store.Store
	metrics *metrics.Collector
}

func NewCleanupTaskHandler(st store.Store, m *metrics.Collector) *CleanupTaskHandler {
	return &CleanupTaskHandler{store: st, metrics: m}
}

func (h *CleanupTaskHandler) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	var p CleanupPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid cleanup task payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.OwnerID == "" || p.Name == "" {
		logger.L().Error("cleanup task without owner or name", zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("owner_id and name are required: %w", asynq.SkipRetry)
	}

	n, err := store.KeepLatest(ctx, h.store, p.OwnerID, p.Name)
	h.metrics.CleanupDone(n, err)
	if err != nil {
		logger.L().Warn("canvas cleanup failed",
			zap.String("owner_id", p.OwnerID),
			zap.String("name", p.Name),
			zap.Int("deleted", n),
			zap.Error(err),
		)
		return err
	}
	logger.L().Info("canvas cleanup done", zap.String("owner_id", p.OwnerID), zap.String("name", p.Name), zap.Int("deleted", n))
	return nil
}

// Enqueuer is the part of *asynq.Client the cleanup enqueuer needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CleanupEnqueuer hands retention cleanup to the worker instead of running
// it inline after each save.
type CleanupEnqueuer struct {
	client Enqueuer
	queue  string
}

// NewCleanupEnqueuer enqueues onto queue, or asynq's default queue when empty.
func NewCleanupEnqueuer(client Enqueuer, queue string) *CleanupEnqueuer {
	return &CleanupEnqueuer{client: client, queue: queue}
}

// Cleanup enqueues the task. It reports zero deletions since the work runs
// later; a cleanup already pending for the same canvas counts as success.
func (e *CleanupEnqueuer) Cleanup(ctx context.Context, ownerID, name string) (int, error) {
	task, err := NewCleanupTask(ownerID, name)
	if err != nil {
		return 0, err
	}
	var opts []asynq.Option
	if e.queue != "" {
		opts = append(opts, asynq.Queue(e.queue))
	}
	_, err = e.client.EnqueueContext(ctx, task, opts...)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return 0, appErr.Wrap(err, appErr.CodeUnavailable, "enqueue canvas cleanup")
	}
	return 0, nil
}
