// Package config handles application configuration for the in3go client
// core: chain selection, request/retry tuning, and the boolean feature
// flags that shape the "in3" request metadata (§4.B).
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/in3go/pkg/types"
)

// Config holds the client's runtime configuration.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`
	ChainID string `conf:"chainid"` // 32-byte hex chain id

	// Request tuning (§4.A/§4.C)
	RequestCount   int           `conf:"requests.count"`    // nodes contacted per wave
	MaxAttempts    int           `conf:"requests.attempts"` // attempts before giving up
	SignatureCount int           `conf:"requests.sigcount"` // signer nodes asked to co-sign
	Timeout        time.Duration `conf:"requests.timeout"`

	// Verification / proof (§4.B "in3" request metadata)
	Verification string `conf:"verification"` // "proof", "none"
	Finality     int    `conf:"finality"`
	LatestBlock  int    `conf:"latestblock"`

	// Feature flags
	AutoUpdateList bool `conf:"autoupdatelist"`
	IncludeCode    bool `conf:"includecode"`
	UseFullProof   bool `conf:"fullproof"`
	NoStats        bool `conf:"nostats"`
	UseBinary      bool `conf:"binary"`
	HTTPOnly       bool `conf:"httponly"` // rewrite https:// node URLs to http://

	// Node-list auto-update (§4.H)
	ReplaceLatestBlock uint64        `conf:"autoupdate.replacelatestblock"`
	AvgBlockTime       time.Duration `conf:"autoupdate.avgblocktime"`

	// Signer
	SignerEnabled  bool   `conf:"signer.enabled"`
	SignerIdentity string `conf:"signer.identity"`

	// Logging
	Log LogConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// ParsedChainID parses cfg.ChainID, defaulting to the zero chain id if
// unset or malformed.
func (c *Config) ParsedChainID() types.ChainID {
	id, err := types.HexToChainID(c.ChainID)
	if err != nil {
		return types.ChainID{}
	}
	return id
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.in3go
//	macOS:   ~/Library/Application Support/In3Go
//	Windows: %APPDATA%\In3Go
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".in3go"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "In3Go")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "In3Go")
		}
		return filepath.Join(home, "AppData", "Roaming", "In3Go")
	default:
		return filepath.Join(home, ".in3go")
	}
}

// CacheDir returns the node-list cache directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// KeystoreDir returns the signer keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "in3go.conf")
}
