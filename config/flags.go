package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string
	ChainID string

	// Request tuning
	RequestCount   int
	MaxAttempts    int
	SignatureCount int
	Timeout        string

	// Verification
	Verification string
	Finality     int
	LatestBlock  int

	// Feature flags
	AutoUpdateList bool
	IncludeCode    bool
	FullProof      bool
	NoStats        bool
	Binary         bool
	HTTPOnly       bool

	// Signer
	Signer         bool
	SignerIdentity string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetAutoUpdateList bool
	SetIncludeCode    bool
	SetFullProof      bool
	SetNoStats        bool
	SetBinary         bool
	SetHTTPOnly       bool
	SetSigner         bool
	SetLogJSON        bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("in3cli", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.ChainID, "chainid", "", "32-byte hex chain id")

	fs.IntVar(&f.RequestCount, "requests", 0, "Nodes contacted per wave")
	fs.IntVar(&f.MaxAttempts, "attempts", 0, "Attempts before giving up")
	fs.IntVar(&f.SignatureCount, "sigcount", 0, "Signer nodes asked to co-sign a response")
	fs.StringVar(&f.Timeout, "timeout", "", "Per-wave timeout (e.g. 10s)")

	fs.StringVar(&f.Verification, "verification", "", "Verification mode: proof or none")
	fs.IntVar(&f.Finality, "finality", 0, "Required finality depth")
	fs.IntVar(&f.LatestBlock, "latestblock", 0, "Blocks to subtract from latest for reads")

	fs.BoolVar(&f.AutoUpdateList, "autoupdatelist", true, "Auto-refresh the node list")
	fs.BoolVar(&f.IncludeCode, "includecode", false, "Include contract code in proofs")
	fs.BoolVar(&f.FullProof, "fullproof", false, "Request full (not minimal) proofs")
	fs.BoolVar(&f.NoStats, "nostats", false, "Disable node statistics reporting")
	fs.BoolVar(&f.Binary, "binary", false, "Use the binary wire encoding")
	fs.BoolVar(&f.HTTPOnly, "httponly", false, "Rewrite https:// node URLs to http://")

	fs.BoolVar(&f.Signer, "signer", false, "Sign requests with a local keystore identity")
	fs.StringVar(&f.SignerIdentity, "identity", "", "Keystore identity name")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetAutoUpdateList = isFlagSet(fs, "autoupdatelist")
	f.SetIncludeCode = isFlagSet(fs, "includecode")
	f.SetFullProof = isFlagSet(fs, "fullproof")
	f.SetNoStats = isFlagSet(fs, "nostats")
	f.SetBinary = isFlagSet(fs, "binary")
	f.SetHTTPOnly = isFlagSet(fs, "httponly")
	f.SetSigner = isFlagSet(fs, "signer")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.ChainID != "" {
		cfg.ChainID = f.ChainID
	}

	if f.RequestCount != 0 {
		cfg.RequestCount = f.RequestCount
	}
	if f.MaxAttempts != 0 {
		cfg.MaxAttempts = f.MaxAttempts
	}
	if f.SignatureCount != 0 {
		cfg.SignatureCount = f.SignatureCount
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}

	if f.Verification != "" {
		cfg.Verification = f.Verification
	}
	if f.Finality != 0 {
		cfg.Finality = f.Finality
	}
	if f.LatestBlock != 0 {
		cfg.LatestBlock = f.LatestBlock
	}

	if f.SetAutoUpdateList {
		cfg.AutoUpdateList = f.AutoUpdateList
	}
	if f.SetIncludeCode {
		cfg.IncludeCode = f.IncludeCode
	}
	if f.SetFullProof {
		cfg.UseFullProof = f.FullProof
	}
	if f.SetNoStats {
		cfg.NoStats = f.NoStats
	}
	if f.SetBinary {
		cfg.UseBinary = f.Binary
	}
	if f.SetHTTPOnly {
		cfg.HTTPOnly = f.HTTPOnly
	}

	if f.SetSigner {
		cfg.SignerEnabled = f.Signer
	}
	if f.SignerIdentity != "" {
		cfg.SignerIdentity = f.SignerIdentity
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `in3cli - trust-minimised RPC client for IN3-style node networks

Usage:
  in3cli [options] <method> [params-json]
  in3cli --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir       Data directory (default: ~/.in3go)
  --config, -c    Config file path (default: <datadir>/in3go.conf)
  --chainid       32-byte hex chain id

Request Options:
  --requests      Nodes contacted per wave (default: 3)
  --attempts      Attempts before giving up (default: 3)
  --sigcount      Signer nodes asked to co-sign a response
  --timeout       Per-wave timeout (default: 10s)

Verification Options:
  --verification  proof or none (default: proof)
  --finality      Required finality depth
  --latestblock   Blocks to subtract from latest for reads

Feature Flags:
  --autoupdatelist  Auto-refresh the node list (default: true)
  --includecode     Include contract code in proofs
  --fullproof       Request full (not minimal) proofs
  --nostats         Disable node statistics reporting
  --binary          Use the binary wire encoding
  --httponly        Rewrite https:// node URLs to http://

Signer Options:
  --signer        Sign requests with a local keystore identity
  --identity      Keystore identity name

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  in3cli eth_blockNumber
  in3cli --chainid=0x01 eth_getBalance '["0xabc...", "latest"]'
  in3cli --signer --identity=default eth_sendTransaction '[{...}]'
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("in3cli version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Idempotent — safe to call on every
// startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.CacheDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
