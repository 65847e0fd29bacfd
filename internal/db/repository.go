package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/prayer"
)

// Repository handles database operations for subscribers and their
// scheduled notifications.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertSubscriber inserts a subscriber or, when the endpoint already
// exists, updates its keys and location in place. The subscriber is
// always left active.
func (r *Repository) UpsertSubscriber(ctx context.Context, endpoint, p256dh, auth string, lat, lon *float64, timezone string) (*Subscriber, error) {
	query := `
		INSERT INTO subscribers (
			id, endpoint, key_p256dh, key_auth, latitude, longitude, timezone
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (endpoint) DO UPDATE SET
			key_p256dh = EXCLUDED.key_p256dh,
			key_auth   = EXCLUDED.key_auth,
			latitude   = EXCLUDED.latitude,
			longitude  = EXCLUDED.longitude,
			timezone   = EXCLUDED.timezone,
			active     = TRUE,
			updated_at = NOW()
		RETURNING id, endpoint, key_p256dh, key_auth, latitude, longitude,
		          timezone, active, created_at, updated_at
	`

	var sub Subscriber
	err := r.db.Pool().QueryRow(ctx, query,
		uuid.New(), endpoint, p256dh, auth, lat, lon, timezone,
	).Scan(
		&sub.ID,
		&sub.Endpoint,
		&sub.KeyP256dh,
		&sub.KeyAuth,
		&sub.Latitude,
		&sub.Longitude,
		&sub.Timezone,
		&sub.Active,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to upsert subscriber", zap.Error(err))
		return nil, fmt.Errorf("upsert subscriber: %w", err)
	}

	r.logger.Info("subscriber upserted",
		zap.String("subscriber_id", sub.ID.String()),
		zap.String("timezone", sub.Timezone),
		zap.Bool("has_location", sub.HasLocation()),
	)

	return &sub, nil
}

// GetSubscriberByEndpoint retrieves a subscriber by its delivery endpoint.
func (r *Repository) GetSubscriberByEndpoint(ctx context.Context, endpoint string) (*Subscriber, error) {
	query := `
		SELECT id, endpoint, key_p256dh, key_auth, latitude, longitude,
		       timezone, active, created_at, updated_at
		FROM subscribers
		WHERE endpoint = $1
	`

	var sub Subscriber
	err := r.db.Pool().QueryRow(ctx, query, endpoint).Scan(
		&sub.ID,
		&sub.Endpoint,
		&sub.KeyP256dh,
		&sub.KeyAuth,
		&sub.Latitude,
		&sub.Longitude,
		&sub.Timezone,
		&sub.Active,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("subscriber not found for endpoint")
	}
	if err != nil {
		return nil, fmt.Errorf("query subscriber: %w", err)
	}

	return &sub, nil
}

// ListActiveSubscribersWithLocation returns every active subscriber
// that has both coordinates set, i.e. everyone eligible for the
// nightly reschedule.
func (r *Repository) ListActiveSubscribersWithLocation(ctx context.Context) ([]*Subscriber, error) {
	query := `
		SELECT id, endpoint, key_p256dh, key_auth, latitude, longitude,
		       timezone, active, created_at, updated_at
		FROM subscribers
		WHERE active = TRUE AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		var sub Subscriber
		err := rows.Scan(
			&sub.ID,
			&sub.Endpoint,
			&sub.KeyP256dh,
			&sub.KeyAuth,
			&sub.Latitude,
			&sub.Longitude,
			&sub.Timezone,
			&sub.Active,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return subs, nil
}

// UpdateSubscriberLocation replaces a subscriber's coordinates and,
// when provided, its timezone. The endpoint must already be registered.
func (r *Repository) UpdateSubscriberLocation(ctx context.Context, endpoint string, lat, lon float64, timezone string) error {
	query := `
		UPDATE subscribers
		SET latitude = $1, longitude = $2,
		    timezone = COALESCE(NULLIF($3, ''), timezone),
		    updated_at = NOW()
		WHERE endpoint = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, lat, lon, timezone, endpoint)
	if err != nil {
		return fmt.Errorf("update subscriber location: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscriber not found for endpoint")
	}

	return nil
}

// DeactivateSubscriber marks a subscriber inactive after a permanent
// delivery failure. The row is kept for the notification log trail.
func (r *Repository) DeactivateSubscriber(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE subscribers SET active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to deactivate subscriber",
			zap.Error(err),
			zap.String("subscriber_id", id.String()),
		)
		return fmt.Errorf("deactivate subscriber: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscriber not found: %s", id)
	}

	r.logger.Info("subscriber deactivated", zap.String("subscriber_id", id.String()))

	return nil
}

// DeleteSubscriber removes a subscriber and, via the foreign key
// cascade, all of its scheduled notifications.
func (r *Repository) DeleteSubscriber(ctx context.Context, endpoint string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM subscribers WHERE endpoint = $1`, endpoint); err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}

// ReplaceUnsentSchedule atomically deletes a subscriber's unsent rows
// and inserts the new set. A concurrent due-notification scan sees
// either the old schedule or the new one, never a half-replaced state.
func (r *Repository) ReplaceUnsentSchedule(ctx context.Context, subscriberID uuid.UUID, notifs []*ScheduledNotification) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`DELETE FROM scheduled_notifications WHERE subscriber_id = $1 AND sent = FALSE`,
		subscriberID,
	)
	if err != nil {
		return fmt.Errorf("delete unsent schedule: %w", err)
	}

	if err := insertSchedule(ctx, tx, notifs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("schedule replaced",
		zap.String("subscriber_id", subscriberID.String()),
		zap.Int("rows", len(notifs)),
	)

	return nil
}

// InsertSchedule bulk-inserts schedule rows for the nightly pass.
// Conflicting rows are reset to unsent rather than duplicated.
func (r *Repository) InsertSchedule(ctx context.Context, notifs []*ScheduledNotification) error {
	if len(notifs) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertSchedule(ctx, tx, notifs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func insertSchedule(ctx context.Context, tx pgx.Tx, notifs []*ScheduledNotification) error {
	query := `
		INSERT INTO scheduled_notifications (
			id, subscriber_id, prayer_name, scheduled_time
		) VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscriber_id, prayer_name, scheduled_time) DO UPDATE SET
			sent = FALSE, sent_at = NULL, last_error = NULL
	`

	for _, n := range notifs {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, query, n.ID, n.SubscriberID, string(n.PrayerName), n.ScheduledTime); err != nil {
			return fmt.Errorf("insert schedule row: %w", err)
		}
	}
	return nil
}

// DueNotifications returns up to limit unsent rows whose scheduled
// time has arrived, joined to their subscriber's active delivery
// credentials, oldest first to bound worst-case lateness.
func (r *Repository) DueNotifications(ctx context.Context, now time.Time, limit int) ([]*DueNotification, error) {
	query := `
		SELECT sn.id, sn.subscriber_id, sn.prayer_name, sn.scheduled_time,
		       s.endpoint, s.key_p256dh, s.key_auth
		FROM scheduled_notifications sn
		JOIN subscribers s ON s.id = sn.subscriber_id
		WHERE sn.sent = FALSE
		  AND sn.scheduled_time <= $1
		  AND s.active = TRUE
		ORDER BY sn.scheduled_time ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	var due []*DueNotification
	for rows.Next() {
		var d DueNotification
		err := rows.Scan(
			&d.ID,
			&d.SubscriberID,
			&d.PrayerName,
			&d.ScheduledTime,
			&d.Endpoint,
			&d.KeyP256dh,
			&d.KeyAuth,
		)
		if err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		due = append(due, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return due, nil
}

// MarkSent flips a schedule row to sent, recording the delivery error
// if any. Applying it to an already-sent row overwrites rather than
// erroring, so retried ticks stay idempotent.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, deliveryErr *string) error {
	query := `
		UPDATE scheduled_notifications
		SET sent = TRUE, sent_at = NOW(), last_error = $1
		WHERE id = $2
	`

	if _, err := r.db.Pool().Exec(ctx, query, deliveryErr, id); err != nil {
		r.logger.Error("failed to mark notification sent",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("mark sent: %w", err)
	}

	return nil
}

// CleanupSentBefore purges sent rows older than the cutoff and
// returns how many were removed.
func (r *Repository) CleanupSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM scheduled_notifications WHERE sent = TRUE AND sent_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications: %w", err)
	}

	return result.RowsAffected(), nil
}

// LogDelivery appends one row to the delivery audit trail.
func (r *Repository) LogDelivery(ctx context.Context, subscriberID uuid.UUID, name prayer.Name, status string, deliveryErr *string) error {
	query := `
		INSERT INTO notification_log (subscriber_id, prayer_name, status, error)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Pool().Exec(ctx, query, subscriberID, string(name), status, deliveryErr); err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// Stats returns the aggregate counters for the stats endpoint.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var s Stats

	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE active = TRUE`,
	).Scan(&s.ActiveSubscribers)
	if err != nil {
		return nil, fmt.Errorf("count active subscribers: %w", err)
	}

	err = r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM scheduled_notifications WHERE sent = FALSE`,
	).Scan(&s.PendingNotifications)
	if err != nil {
		return nil, fmt.Errorf("count pending notifications: %w", err)
	}

	err = r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM scheduled_notifications WHERE sent = TRUE AND sent_at >= date_trunc('day', NOW())`,
	).Scan(&s.SentToday)
	if err != nil {
		return nil, fmt.Errorf("count sent today: %w", err)
	}

	return &s, nil
}
