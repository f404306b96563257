package config

import "time"

// Default returns the client's default configuration: three nodes per
// wave, two retries, proof verification on, auto-update enabled.
func Default() *Config {
	return &Config{
		DataDir:        DefaultDataDir(),
		RequestCount:   3,
		MaxAttempts:    3,
		SignatureCount: 0,
		Timeout:        10 * time.Second,

		Verification: "proof",
		Finality:     0,
		LatestBlock:  0,

		AutoUpdateList: true,
		IncludeCode:    false,
		UseFullProof:   false,
		NoStats:        false,
		UseBinary:      false,
		HTTPOnly:       false,

		ReplaceLatestBlock: 6,
		AvgBlockTime:       15 * time.Second,

		SignerEnabled: false,

		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
