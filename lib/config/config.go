// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for emulators and bench devices.
	Development Environment = "development"
	// Production is for devices carried by crews.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths   PathsConfig   `yaml:"paths"`
	Network NetworkConfig `yaml:"network"`
	Backend BackendConfig `yaml:"backend"`
	Scan    ScanConfig    `yaml:"scan"`
	Proof   ProofConfig   `yaml:"proof"`
	Pricing PricingConfig `yaml:"pricing"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Network *NetworkConfig `yaml:"network,omitempty"`
	Backend *BackendConfig `yaml:"backend,omitempty"`
	Proof   *ProofConfig   `yaml:"proof,omitempty"`
}

// PathsConfig configures on-device storage locations.
type PathsConfig struct {
	// Root is the base directory for device data.
	Root string `yaml:"root"`

	// StateDB is the SQLite file holding the offline queue and job
	// snapshots.
	StateDB string `yaml:"state_db"`

	// Proofs is the proof photo store directory.
	Proofs string `yaml:"proofs"`
}

// NetworkConfig configures reachability probing.
type NetworkConfig struct {
	// ProbeURL is fetched to decide whether the device is online.
	// Empty means the device is assumed online and never probed.
	ProbeURL string `yaml:"probe_url"`

	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// BackendConfig configures the mutation backend.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	// DryRun commits to an in-process backend instead of URL.
	DryRun *bool `yaml:"dry_run,omitempty"`
}

// ScanConfig configures the QR scan loop.
type ScanConfig struct {
	FrameInterval    time.Duration `yaml:"frame_interval"`
	MismatchCooldown time.Duration `yaml:"mismatch_cooldown"`

	// Facing is "rear" or "front".
	Facing string `yaml:"facing"`
}

// ProofConfig configures photo proof storage and review.
type ProofConfig struct {
	// Recipients are age recipients proof photos are sealed to.
	Recipients []string `yaml:"recipients"`

	// DeviceKeyFile holds the attestation secret; created on first use.
	DeviceKeyFile string `yaml:"device_key_file"`

	AI AIConfig `yaml:"ai"`
}

// AIConfig configures the cleanliness classifier.
type AIConfig struct {
	// URL is the API base. Empty disables AI review.
	URL   string `yaml:"url"`
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PricingConfig configures special collection rewards.
type PricingConfig struct {
	PointsPerKg float64 `yaml:"points_per_kg"`
}

// Default returns the default configuration, applied before the file
// is decoded.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "fieldverify")
	dryRun := true

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:    defaultRoot,
			StateDB: "${FIELDVERIFY_ROOT}/state.db",
			Proofs:  "${FIELDVERIFY_ROOT}/proofs",
		},
		Network: NetworkConfig{
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
		},
		Backend: BackendConfig{
			Timeout: 15 * time.Second,
			DryRun:  &dryRun,
		},
		Scan: ScanConfig{
			FrameInterval:    time.Second / 60,
			MismatchCooldown: 2 * time.Second,
			Facing:           "rear",
		},
		Proof: ProofConfig{
			DeviceKeyFile: "${FIELDVERIFY_ROOT}/device.key",
			AI: AIConfig{
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Timeout:   30 * time.Second,
			},
		},
		Pricing: PricingConfig{PointsPerKg: 2},
	}
}

// Load loads configuration from the FIELDVERIFY_CONFIG environment
// variable. There is no fallback when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("FIELDVERIFY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FIELDVERIFY_CONFIG environment variable not set; " +
			"set it to the path of your fieldverify.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			dryRun := false
			overrides = &ConfigOverrides{Backend: &BackendConfig{DryRun: &dryRun}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.StateDB != "" {
			c.Paths.StateDB = overrides.Paths.StateDB
		}
		if overrides.Paths.Proofs != "" {
			c.Paths.Proofs = overrides.Paths.Proofs
		}
	}

	if overrides.Network != nil {
		if overrides.Network.ProbeURL != "" {
			c.Network.ProbeURL = overrides.Network.ProbeURL
		}
		if overrides.Network.Interval != 0 {
			c.Network.Interval = overrides.Network.Interval
		}
		if overrides.Network.Timeout != 0 {
			c.Network.Timeout = overrides.Network.Timeout
		}
	}

	if overrides.Backend != nil {
		if overrides.Backend.URL != "" {
			c.Backend.URL = overrides.Backend.URL
		}
		if overrides.Backend.Timeout != 0 {
			c.Backend.Timeout = overrides.Backend.Timeout
		}
		if overrides.Backend.DryRun != nil {
			c.Backend.DryRun = overrides.Backend.DryRun
		}
	}

	if overrides.Proof != nil {
		if len(overrides.Proof.Recipients) > 0 {
			c.Proof.Recipients = overrides.Proof.Recipients
		}
		if overrides.Proof.DeviceKeyFile != "" {
			c.Proof.DeviceKeyFile = overrides.Proof.DeviceKeyFile
		}
		if overrides.Proof.AI.URL != "" {
			c.Proof.AI.URL = overrides.Proof.AI.URL
		}
		if overrides.Proof.AI.Model != "" {
			c.Proof.AI.Model = overrides.Proof.AI.Model
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"FIELDVERIFY_ROOT": c.Paths.Root,
		"HOME":             os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["FIELDVERIFY_ROOT"] = c.Paths.Root

	c.Paths.StateDB = expandVars(c.Paths.StateDB, vars)
	c.Paths.Proofs = expandVars(c.Paths.Proofs, vars)
	c.Proof.DeviceKeyFile = expandVars(c.Proof.DeviceKeyFile, vars)
	c.Network.ProbeURL = expandVars(c.Network.ProbeURL, vars)
	c.Backend.URL = expandVars(c.Backend.URL, vars)
	c.Proof.AI.URL = expandVars(c.Proof.AI.URL, vars)
	for i, recipient := range c.Proof.Recipients {
		c.Proof.Recipients[i] = expandVars(recipient, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided vars
// take precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// DryRunEnabled reports whether commits go to the in-process backend.
func (c *Config) DryRunEnabled() bool {
	return c.Backend.DryRun != nil && *c.Backend.DryRun
}

// AIAPIKey returns the classifier API key from the environment.
func (c *Config) AIAPIKey() string {
	if c.Proof.AI.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Proof.AI.APIKeyEnv)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.StateDB == "" {
		errs = append(errs, errors.New("paths.state_db is required"))
	}
	if c.Paths.Proofs == "" {
		errs = append(errs, errors.New("paths.proofs is required"))
	}
	if !c.DryRunEnabled() && c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required unless backend.dry_run is set"))
	}
	if c.Network.ProbeURL != "" && c.Network.Interval <= 0 {
		errs = append(errs, errors.New("network.interval must be positive"))
	}
	if c.Scan.FrameInterval <= 0 {
		errs = append(errs, errors.New("scan.frame_interval must be positive"))
	}
	if c.Scan.MismatchCooldown < 0 {
		errs = append(errs, errors.New("scan.mismatch_cooldown must not be negative"))
	}
	if c.Scan.Facing != "rear" && c.Scan.Facing != "front" {
		errs = append(errs, fmt.Errorf("scan.facing must be rear or front, got %q", c.Scan.Facing))
	}
	if c.Pricing.PointsPerKg < 0 {
		errs = append(errs, errors.New("pricing.points_per_kg must not be negative"))
	}
	if c.Environment == Production && c.DryRunEnabled() {
		errs = append(errs, errors.New("backend.dry_run is not allowed in production"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the data directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		filepath.Dir(c.Paths.StateDB),
		c.Paths.Proofs,
	}
	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
