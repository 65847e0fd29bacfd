package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/push"
)

// ProtectedSender wraps a push.Sender with a CircuitBreaker. When the
// push service starts failing, the circuit opens and sends fail fast
// instead of piling up behind a dead upstream.
type ProtectedSender struct {
	sender  push.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender push.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts delivery through the circuit breaker. If the circuit
// is open, returns ErrCircuitOpen immediately. A gone endpoint counts
// as a healthy transport response for the breaker: the push service
// answered, the subscription is just dead.
func (p *ProtectedSender) Send(ctx context.Context, msg push.Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected push",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: push service unavailable", ErrCircuitOpen)
	}

	err := p.sender.Send(ctx, msg)
	if err != nil && !errors.Is(err, push.ErrEndpointGone) {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return err
}

// Breaker returns the underlying circuit breaker for stats reporting.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
