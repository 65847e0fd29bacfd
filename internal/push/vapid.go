package push

import (
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// VAPIDKeys is the server's Web Push signing key pair. The public key
// is handed to clients at subscription time; both halves must stay
// stable across restarts or every existing subscription breaks.
type VAPIDKeys struct {
	Public  string
	Private string
}

// LoadOrGenerateVAPIDKeys returns the configured key pair, or
// generates a fresh one when none is configured. Generated keys are
// logged so an operator can persist them; until then each restart
// invalidates previously issued subscriptions.
func LoadOrGenerateVAPIDKeys(public, private string, logger *zap.Logger) (VAPIDKeys, error) {
	if public != "" && private != "" {
		return VAPIDKeys{Public: public, Private: private}, nil
	}

	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPIDKeys{}, fmt.Errorf("generate vapid keys: %w", err)
	}

	logger.Warn("VAPID keys not configured, generated a temporary pair; set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY to persist subscriptions",
		zap.String("vapid_public_key", pub),
		zap.String("vapid_private_key", priv),
	)

	return VAPIDKeys{Public: pub, Private: priv}, nil
}
