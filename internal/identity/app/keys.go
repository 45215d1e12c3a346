package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

// InitKeys generates the in-memory signing keys for the configured
// algorithm (RS256 or EdDSA). Keys are not persisted, so every restart
// invalidates outstanding access and identity tokens. Refresh tokens are
// opaque and survive.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager",
		"algorithm", cfg.Algorithm,
		"num_keys", cfg.NumKeys,
	)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing keys",
		"algorithm", keyManager.Algorithm(),
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)

	return keyManager, nil
}
