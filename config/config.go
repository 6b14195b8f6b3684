// Package config loads the engine's YAML configuration file and fills in
// defaults for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"time"

	"warden/waf"

	yaml "gopkg.in/yaml.v2"
)

// Config is the full engine configuration.
type Config struct {
	ListenAddr      string `yaml:"listenAddr"`
	BlockStatusCode int    `yaml:"blockStatusCode"`

	// MaxBodyScanBytes caps how much of a request body is scanned.
	MaxBodyScanBytes int `yaml:"maxBodyScanBytes"`

	// DataDir holds the last good geo and threat feed data.
	DataDir string `yaml:"dataDir"`

	Engine      EngineSection      `yaml:"engine"`
	Geo         GeoSection         `yaml:"geo"`
	ThreatIntel ThreatIntelSection `yaml:"threatIntel"`
	Anomaly     AnomalySection     `yaml:"anomaly"`

	// Rules seeds the rule store at startup. The management API can
	// change the set afterwards.
	Rules []waf.Rule `yaml:"rules"`
}

// EngineSection configures the decision engine's thresholds.
type EngineSection struct {
	AnomalyThreshold             float64 `yaml:"anomalyThreshold"`
	Sensitivity                  string  `yaml:"sensitivity"`
	ThreatSeverityBlockThreshold int     `yaml:"threatSeverityBlockThreshold"`
}

// GeoSection configures the Geo/IP gate.
type GeoSection struct {
	Enabled          bool     `yaml:"enabled"`
	BlockedCountries []string `yaml:"blockedCountries"`
	Blocklist        []string `yaml:"blocklist"`
	Allowlist        []string `yaml:"allowlist"`
	LookupBudgetMs   int      `yaml:"lookupBudgetMs"`
}

// ThreatIntelSection configures the feed refresher.
type ThreatIntelSection struct {
	FeedIDs []string `yaml:"feedIds"`

	// BaseURL of the feed provider. Empty disables refreshing; the engine
	// then runs on the last good data only.
	BaseURL string `yaml:"baseUrl"`

	// Schedule is a cron expression.
	Schedule string `yaml:"schedule"`

	FetchTimeoutMs int `yaml:"fetchTimeoutMs"`
}

// AnomalySection configures the heuristic scorer.
type AnomalySection struct {
	// SuspiciousTokens overrides the built-in token list when non-empty.
	SuspiciousTokens []string `yaml:"suspiciousTokens"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:       ":8181",
		BlockStatusCode:  403,
		MaxBodyScanBytes: 128 * 1024,
		DataDir:          "/var/lib/warden",
		Engine: EngineSection{
			AnomalyThreshold:             0.7,
			Sensitivity:                  string(waf.SensitivityMedium),
			ThreatSeverityBlockThreshold: 4,
		},
		Geo: GeoSection{
			LookupBudgetMs: 50,
		},
		ThreatIntel: ThreatIntelSection{
			Schedule:       "@every 15m",
			FetchTimeoutMs: 10000,
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (Config, error) {
	c := Default()

	bb, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("cannot read config file %v: %v", path, err)
	}

	if err = yaml.UnmarshalStrict(bb, &c); err != nil {
		return c, fmt.Errorf("cannot parse config file %v: %v", path, err)
	}

	if err = c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config file %v: %v", path, err)
	}

	return c, nil
}

// Validate checks the values Load cannot default away.
func (c Config) Validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}

	if c.BlockStatusCode < 100 || c.BlockStatusCode > 599 {
		return fmt.Errorf("blockStatusCode must be a valid HTTP status, got %v", c.BlockStatusCode)
	}

	if c.MaxBodyScanBytes <= 0 {
		return fmt.Errorf("maxBodyScanBytes must be positive, got %v", c.MaxBodyScanBytes)
	}

	for _, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("seed rule %v: %v", r.ID, err)
		}
	}

	return nil
}

// EngineConfig converts the engine section to the decision engine's config.
func (c Config) EngineConfig() waf.EngineConfig {
	return waf.EngineConfig{
		AnomalyThreshold:             c.Engine.AnomalyThreshold,
		Sensitivity:                  waf.Sensitivity(c.Engine.Sensitivity),
		ThreatSeverityBlockThreshold: c.Engine.ThreatSeverityBlockThreshold,
	}
}

// GeoLookupBudget returns the gate's per-lookup time budget.
func (c Config) GeoLookupBudget() time.Duration {
	return time.Duration(c.Geo.LookupBudgetMs) * time.Millisecond
}

// FetchTimeout returns the per-feed fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.ThreatIntel.FetchTimeoutMs) * time.Millisecond
}
