package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value
	case "chainid":
		cfg.ChainID = value

	case "requests.count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RequestCount = n
	case "requests.attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.MaxAttempts = n
	case "requests.sigcount":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.SignatureCount = n
	case "requests.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Timeout = d

	case "verification":
		cfg.Verification = value
	case "finality":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Finality = n
	case "latestblock":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.LatestBlock = n

	case "autoupdatelist":
		cfg.AutoUpdateList = parseBool(value)
	case "includecode":
		cfg.IncludeCode = parseBool(value)
	case "fullproof":
		cfg.UseFullProof = parseBool(value)
	case "nostats":
		cfg.NoStats = parseBool(value)
	case "binary":
		cfg.UseBinary = parseBool(value)
	case "httponly":
		cfg.HTTPOnly = parseBool(value)

	case "autoupdate.replacelatestblock":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.ReplaceLatestBlock = n
	case "autoupdate.avgblocktime":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.AvgBlockTime = d

	case "signer.enabled":
		cfg.SignerEnabled = parseBool(value)
	case "signer.identity":
		cfg.SignerIdentity = value

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string) error {
	content := `# in3go client configuration
#
# chainid is the 32-byte hex id of the network to talk to. Leave unset to
# select the zero chain id (useful for local test nodes only).
# chainid = 0x000000000000000000000000000000000000000000000000000000000000f6f5

# ============================================================================
# Request tuning
# ============================================================================

# Nodes contacted per wave, attempts before giving up, and signer nodes
# asked to co-sign a response.
requests.count = 3
requests.attempts = 3
requests.sigcount = 0
requests.timeout = 10s

# ============================================================================
# Verification
# ============================================================================

# proof or none
verification = proof
finality = 0
latestblock = 0

# ============================================================================
# Feature flags
# ============================================================================

autoupdatelist = true
includecode = false
fullproof = false
nostats = false
binary = false
httponly = false

# ============================================================================
# Node-list auto-update
# ============================================================================

autoupdate.replacelatestblock = 6
autoupdate.avgblocktime = 15s

# ============================================================================
# Signer
# ============================================================================

signer.enabled = false
# signer.identity = default

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
