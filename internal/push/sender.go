// Package push wraps the Web Push delivery transport. Message
// encryption and VAPID signing are delegated to webpush-go; this
// package classifies outcomes for the dispatcher.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// ErrEndpointGone reports that the push service no longer recognises
// the subscription endpoint (HTTP 404/410). The subscriber must be
// deactivated; retrying can never succeed.
var ErrEndpointGone = errors.New("push endpoint gone")

// Message is one encrypted-push delivery request.
type Message struct {
	Endpoint string
	P256dh   string
	Auth     string
	Payload  []byte
}

// Sender delivers one push message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// WebPushSender delivers messages through the Web Push protocol using
// VAPID authentication.
type WebPushSender struct {
	keys    VAPIDKeys
	subject string
	ttl     int
	logger  *zap.Logger
}

// WebPushConfig holds sender settings.
type WebPushConfig struct {
	Keys    VAPIDKeys
	Subject string // contact URI the push service may use, e.g. mailto:
	TTL     time.Duration
}

// NewWebPushSender creates a Web Push sender.
func NewWebPushSender(cfg WebPushConfig, logger *zap.Logger) *WebPushSender {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &WebPushSender{
		keys:    cfg.Keys,
		subject: cfg.Subject,
		ttl:     int(ttl.Seconds()),
		logger:  logger,
	}
}

// Send encrypts and posts the payload to the subscriber's endpoint.
// A 404 or 410 response maps to ErrEndpointGone; any other non-2xx
// status is a transient transport failure.
func (s *WebPushSender) Send(ctx context.Context, msg Message) error {
	sub := &webpush.Subscription{
		Endpoint: msg.Endpoint,
		Keys: webpush.Keys{
			P256dh: msg.P256dh,
			Auth:   msg.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, msg.Payload, sub, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.keys.Public,
		VAPIDPrivateKey: s.keys.Private,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyHigh,
		Topic:           "prayer-notification",
	})
	if err != nil {
		return fmt.Errorf("web push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 || resp.StatusCode == 410 {
		return fmt.Errorf("%w: status %d", ErrEndpointGone, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push service returned status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.Debug("push delivered",
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

// LogSender is a sender that only logs messages (for development).
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message instead of delivering it.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("push send (log only)",
		zap.String("endpoint", msg.Endpoint),
		zap.Int("payload_bytes", len(msg.Payload)),
	)
	return nil
}
