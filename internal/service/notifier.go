package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/shift-exchange-api/internal/models"
	"github.com/noah-isme/shift-exchange-api/pkg/config"
	"github.com/noah-isme/shift-exchange-api/pkg/jobs"
)

// Notifier receives lifecycle events. Delivery is fire-and-forget from the
// engine's perspective and at-least-once toward the sink.
type Notifier interface {
	Publish(ctx context.Context, event models.NotificationEvent)
}

// NopNotifier drops events; used when notifications are disabled.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(context.Context, models.NotificationEvent) {}

// RedisNotifier pushes lifecycle events onto a Redis channel. Publishing runs
// through the background queue so engine calls never block on the broker, and
// failed publishes are retried with the queue's backoff.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	queue   *jobs.Queue
	cfg     config.NotificationsConfig
	logger  *zap.Logger
}

// NewRedisNotifier constructs the notifier and starts its dispatch queue.
func NewRedisNotifier(ctx context.Context, client *redis.Client, cfg config.NotificationsConfig, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &RedisNotifier{
		client:  client,
		channel: cfg.Channel,
		cfg:     cfg,
		logger:  logger,
	}
	n.queue = jobs.NewQueue("notifications", n.dispatch, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	n.queue.Start(ctx)
	return n
}

// Publish enqueues the event for asynchronous delivery.
func (n *RedisNotifier) Publish(_ context.Context, event models.NotificationEvent) {
	err := n.queue.Enqueue(jobs.Job{
		ID:      event.RequestID,
		Type:    string(event.Type),
		Payload: event,
	})
	if err != nil {
		n.logger.Warn("failed to enqueue notification", zap.Error(err))
	}
}

// Stop drains the dispatch queue.
func (n *RedisNotifier) Stop() {
	n.queue.Stop()
}

func (n *RedisNotifier) dispatch(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		n.logger.Warn("dropping notification with unexpected payload", zap.String("type", job.Type))
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("dropping unencodable notification", zap.Error(err))
		return nil
	}
	publishCtx, cancel := context.WithTimeout(ctx, n.cfg.PublishTimeout)
	defer cancel()
	return n.client.Publish(publishCtx, n.channel, body).Err()
}
