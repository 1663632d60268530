package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	Token     TokenConfig     `yaml:"token"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Detection DetectionConfig `yaml:"detection"`

	BlacklistedIPs     []string `yaml:"blacklisted_ips"`
	BannedGeoLocations []string `yaml:"banned_geo_locations"`
}

type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// APIKey guards the write endpoints. Empty disables the check.
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RedisConfig selects the ledger backend. An empty Addr keeps the ledger in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type TokenConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type LedgerConfig struct {
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	BlacklistDuration time.Duration `yaml:"blacklist_duration"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
}

type DetectionConfig struct {
	AutomationThreshold float64       `yaml:"automation_threshold"`
	SuspicionCutoff     float64       `yaml:"suspicion_cutoff"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`

	// HeadlessTokens are matched case-insensitively against the user agent by the
	// automation detector.
	HeadlessTokens     []string        `yaml:"headless_tokens"`
	AutomationGlobals  []string        `yaml:"automation_globals"`
	AutomationAttrs    []string        `yaml:"automation_attributes"`
	ZeroPluginPlatform []string        `yaml:"zero_plugin_platforms"`
	KnownBotTokens     []string        `yaml:"known_bot_tokens"`
	SecurityTools      []string        `yaml:"security_tools"`
	DisabledChecks     map[string]bool `yaml:"disabled_checks"`

	// Weights overrides the score of individual automation checks by id.
	Weights map[string]float64 `yaml:"weights"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         ":8080",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			AllowedOrigins: []string{"*"},
			RequestTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{Prefix: "riskgate:"},
		Token: TokenConfig{
			Secret: "dev-secret-change-in-production",
			TTL:    24 * time.Hour,
		},
		Ledger: LedgerConfig{
			MaxFailedAttempts: 3,
			BlacklistDuration: 24 * time.Hour,
			CleanupInterval:   time.Minute,
			StoreTimeout:      2 * time.Second,
		},
		Detection: DetectionConfig{
			AutomationThreshold: 3,
			SuspicionCutoff:     0.3,
			ProbeTimeout:        3 * time.Second,
			HeadlessTokens: []string{
				"headless", "phantomjs", "selenium", "webdriver",
				"puppeteer", "playwright", "nightmare", "slimerjs",
			},
			AutomationGlobals: []string{
				"_phantom", "callPhantom", "__nightmare", "_selenium",
				"domAutomation", "domAutomationController", "__webdriver_evaluate",
				"__selenium_evaluate", "__driver_evaluate", "__playwright",
				"__puppeteer_evaluation_script__",
			},
			AutomationAttrs:    []string{"webdriver", "selenium", "driver"},
			ZeroPluginPlatform: []string{"Linux armv8l", "Linux aarch64", "iPhone", "iPad", "Android"},
			KnownBotTokens: []string{
				"bot", "crawler", "spider", "scraper", "curl", "wget",
				"python", "httpclient", "okhttp", "go-http", "java/", "libwww",
				"node-fetch", "axios", "headless",
			},
			SecurityTools: []string{
				"nikto", "sqlmap", "burp", "nmap", "masscan", "zgrab",
				"acunetix", "nessus", "wpscan", "dirbuster", "gobuster", "nuclei",
			},
			DisabledChecks: map[string]bool{},
			Weights:        map[string]float64{},
		},
		BlacklistedIPs:     []string{},
		BannedGeoLocations: []string{},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. The defaults are returned
// alongside any read or parse error so callers can keep running.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		cfg.applyEnv()
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.applyEnv()
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RISKGATE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("RISKGATE_TOKEN_SECRET"); v != "" {
		c.Token.Secret = v
	}
	if v := os.Getenv("RISKGATE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("RISKGATE_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.MaxFailedAttempts <= 0 {
		errs = append(errs, errors.New("ledger.max_failed_attempts must be positive"))
	}
	if c.Ledger.BlacklistDuration <= 0 {
		errs = append(errs, errors.New("ledger.blacklist_duration must be positive"))
	}
	if c.Detection.SuspicionCutoff <= 0 || c.Detection.SuspicionCutoff > 1 {
		errs = append(errs, errors.New("detection.suspicion_cutoff must be in (0, 1]"))
	}
	for id, w := range c.Detection.Weights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("detection.weights.%s must not be negative", id))
		}
	}
	if c.Detection.AutomationThreshold <= 0 {
		errs = append(errs, errors.New("detection.automation_threshold must be positive"))
	}
	if c.Token.Secret == "" {
		errs = append(errs, errors.New("token.secret must not be empty"))
	}
	if c.Detection.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("detection.probe_timeout must be positive"))
	}
	for _, entry := range c.BlacklistedIPs {
		if strings.Contains(entry, "/") {
			if _, err := netip.ParsePrefix(entry); err != nil {
				errs = append(errs, fmt.Errorf("invalid CIDR '%s'", entry))
			}
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			errs = append(errs, fmt.Errorf("invalid IP '%s'", entry))
		}
	}
	return errors.Join(errs...)
}
