// Package dispatch delivers due prayer notifications through the push
// transport and records each terminal outcome on the schedule row.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/db"
	"github.com/zaidalbayati/minaret/internal/metrics"
	"github.com/zaidalbayati/minaret/internal/prayer"
	"github.com/zaidalbayati/minaret/internal/push"
)

// Repository is the slice of store operations the dispatcher needs.
type Repository interface {
	MarkSent(ctx context.Context, id uuid.UUID, deliveryErr *string) error
	DeactivateSubscriber(ctx context.Context, id uuid.UUID) error
	LogDelivery(ctx context.Context, subscriberID uuid.UUID, name prayer.Name, status string, deliveryErr *string) error
}

// Outcome classifies one delivery attempt.
type Outcome struct {
	Success bool
	Expired bool
	Err     error
}

// Dispatcher sends due notifications and applies the resulting store
// mutations. A row is always marked sent after a terminal outcome,
// success or not: a prayer alert is time-sensitive and redelivering it
// after the window has passed helps nobody.
type Dispatcher struct {
	repo   Repository
	sender push.Sender
	config Config
	logger *zap.Logger
}

// Config holds dispatcher settings.
type Config struct {
	// Concurrency bounds the number of simultaneous push deliveries
	// per batch.
	Concurrency int
}

// New creates a dispatcher.
func New(repo Repository, sender push.Sender, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	return &Dispatcher{
		repo:   repo,
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Dispatch delivers one batch across a bounded worker pool and waits
// for every delivery to reach a terminal outcome before returning, so
// a scan tick never overlaps with its own in-flight sends.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []*db.DueNotification) {
	if len(batch) == 0 {
		return
	}

	jobs := make(chan *db.DueNotification)
	var wg sync.WaitGroup

	workers := d.config.Concurrency
	if workers > len(batch) {
		workers = len(batch)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for notif := range jobs {
				d.process(ctx, notif)
			}
		}()
	}

	for _, notif := range batch {
		jobs <- notif
	}
	close(jobs)
	wg.Wait()
}

// process delivers one row and applies the outcome to the stores.
func (d *Dispatcher) process(ctx context.Context, notif *db.DueNotification) {
	start := time.Now()
	outcome := d.Deliver(ctx, notif)

	switch {
	case outcome.Success:
		if err := d.repo.MarkSent(ctx, notif.ID, nil); err != nil {
			d.logger.Error("failed to mark notification sent",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
			return
		}
		_ = d.repo.LogDelivery(ctx, notif.SubscriberID, notif.PrayerName, db.LogStatusSent, nil)
		metrics.RecordNotificationSent(string(notif.PrayerName), "success")
		metrics.RecordDeliveryLatency(time.Since(start))

		d.logger.Info("notification delivered",
			zap.String("notification_id", notif.ID.String()),
			zap.String("prayer", string(notif.PrayerName)),
			zap.Duration("lateness", start.Sub(notif.ScheduledTime)),
		)

	case outcome.Expired:
		errMsg := outcome.Err.Error()
		if err := d.repo.MarkSent(ctx, notif.ID, &errMsg); err != nil {
			d.logger.Error("failed to mark expired notification",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
		}
		_ = d.repo.LogDelivery(ctx, notif.SubscriberID, notif.PrayerName, db.LogStatusFailed, &errMsg)
		metrics.RecordNotificationSent(string(notif.PrayerName), "expired")

		if err := d.repo.DeactivateSubscriber(ctx, notif.SubscriberID); err != nil {
			d.logger.Error("failed to deactivate expired subscriber",
				zap.Error(err),
				zap.String("subscriber_id", notif.SubscriberID.String()),
			)
			return
		}

		d.logger.Info("subscriber deactivated - endpoint gone",
			zap.String("subscriber_id", notif.SubscriberID.String()),
		)

	default:
		// Transient failure: record the error but keep the
		// subscriber for the next cycle. The row is still marked
		// sent - no retry of a stale prayer alert.
		errMsg := outcome.Err.Error()
		if err := d.repo.MarkSent(ctx, notif.ID, &errMsg); err != nil {
			d.logger.Error("failed to record delivery failure",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
		}
		_ = d.repo.LogDelivery(ctx, notif.SubscriberID, notif.PrayerName, db.LogStatusFailed, &errMsg)
		metrics.RecordNotificationSent(string(notif.PrayerName), "failed")

		d.logger.Warn("notification delivery failed",
			zap.Error(outcome.Err),
			zap.String("notification_id", notif.ID.String()),
			zap.String("prayer", string(notif.PrayerName)),
		)
	}
}

// Deliver sends one push message and classifies the result without
// touching the stores.
func (d *Dispatcher) Deliver(ctx context.Context, notif *db.DueNotification) Outcome {
	payload, err := push.NewPrayerPayload(notif.PrayerName, notif.ScheduledTime).Marshal()
	if err != nil {
		return Outcome{Err: err}
	}

	err = d.sender.Send(ctx, push.Message{
		Endpoint: notif.Endpoint,
		P256dh:   notif.KeyP256dh,
		Auth:     notif.KeyAuth,
		Payload:  payload,
	})
	if err == nil {
		return Outcome{Success: true}
	}
	if errors.Is(err, push.ErrEndpointGone) {
		return Outcome{Expired: true, Err: err}
	}
	return Outcome{Err: err}
}
