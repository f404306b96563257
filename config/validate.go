package config

import (
	"fmt"

	"github.com/Klingon-tech/in3go/pkg/types"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.ChainID != "" {
		if _, err := types.HexToChainID(cfg.ChainID); err != nil {
			return fmt.Errorf("chainid: %w", err)
		}
	}
	if cfg.RequestCount <= 0 {
		return fmt.Errorf("requests.count must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("requests.attempts must be positive")
	}
	if cfg.SignatureCount < 0 {
		return fmt.Errorf("requests.sigcount must not be negative")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("requests.timeout must be positive")
	}
	switch cfg.Verification {
	case "", "proof", "none":
	default:
		return fmt.Errorf("verification must be %q or %q", "proof", "none")
	}
	if cfg.ReplaceLatestBlock == 0 {
		return fmt.Errorf("autoupdate.replacelatestblock must be positive")
	}
	if cfg.AvgBlockTime <= 0 {
		return fmt.Errorf("autoupdate.avgblocktime must be positive")
	}
	if cfg.SignerEnabled && cfg.SignerIdentity == "" {
		return fmt.Errorf("signer.identity is required when signer.enabled is true")
	}
	return nil
}
