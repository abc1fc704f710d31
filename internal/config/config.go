package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/ratelimit"
)

const (
	DefaultBaseURL      = "https://api.productboard.com"
	DefaultInstanceName = "default"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `json:"server" yaml:"server"`
	Productboard ProductboardConfig `json:"productboard" yaml:"productboard"`
	Resilience   ResilienceConfig   `json:"resilience" yaml:"resilience"`
	RateLimit    RateLimitConfig    `json:"rate_limit" yaml:"rate_limit"`
	Tools        ToolsConfig        `json:"tools" yaml:"tools"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Transport            string `json:"transport"`
	Port                 int    `json:"port"`
	Host                 string `json:"host"`
	ReadTimeout          int    `json:"read_timeout_seconds"`
	WriteTimeout         int    `json:"write_timeout_seconds"`
	SessionTimeout       int    `json:"session_timeout_seconds"`
	SessionSweepInterval int    `json:"session_sweep_interval_seconds"`
	MetricsEnabled       bool   `json:"metrics_enabled"`
}

// ProductboardConfig holds upstream settings and the credential set
type ProductboardConfig struct {
	BaseURL         string               `json:"base_url"`
	RequestTimeout  int                  `json:"request_timeout_seconds"`
	DefaultInstance string               `json:"default_instance"`
	InstancesFile   string               `json:"instances_file,omitempty"`
	Instances       map[string]*Instance `json:"instances"`
}

// Instance is one set of Productboard credentials
type Instance struct {
	Name       string           `json:"name" yaml:"-"`
	APIToken   string           `json:"-" yaml:"api_token"` // Never serialize API token
	BaseURL    string           `json:"base_url" yaml:"base_url"`
	Workspaces []string         `json:"workspaces,omitempty" yaml:"workspaces"`
	RateLimit  *ratelimit.Limit `json:"rate_limit,omitempty" yaml:"rate_limit"`
}

// Fingerprint identifies the token in logs without revealing it
func (i *Instance) Fingerprint() string {
	if i.APIToken == "" {
		return "none"
	}
	sum := blake2b.Sum256([]byte(i.APIToken))
	return hex.EncodeToString(sum[:4])
}

// CacheKey identifies the resolved credentials inside a session cache
func (i *Instance) CacheKey() string {
	return "instance:" + i.Name + ":" + i.Fingerprint()
}

// HasWorkspace reports whether the instance serves workspaceID
func (i *Instance) HasWorkspace(workspaceID string) bool {
	for _, w := range i.Workspaces {
		if w == workspaceID {
			return true
		}
	}
	return false
}

// ResilienceConfig tunes retry and circuit breaking of upstream calls
type ResilienceConfig struct {
	MaxAttempts      int `json:"max_attempts"`
	InitialDelayMs   int `json:"initial_delay_ms"`
	MaxDelayMs       int `json:"max_delay_ms"`
	BreakerThreshold int `json:"breaker_threshold"`
	BreakerCooldown  int `json:"breaker_cooldown_seconds"`
	MaxPages         int `json:"max_pages"`
}

// RateLimitConfig is the default per-instance request budget
type RateLimitConfig struct {
	Enabled   bool `json:"enabled"`
	PerSecond int  `json:"per_second"`
	Burst     int  `json:"burst"`
}

// ToolsConfig selects which tools are exposed
type ToolsConfig struct {
	EnabledCategories  []string `json:"enabled_categories"`
	ManifestPath       string   `json:"manifest_path,omitempty"`
	EntityMappingsPath string   `json:"entity_mappings_path,omitempty"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:            "stdio",
			Port:                 8080,
			Host:                 "localhost",
			ReadTimeout:          30,
			WriteTimeout:         60,
			SessionTimeout:       300,
			SessionSweepInterval: 60,
			MetricsEnabled:       true,
		},
		Productboard: ProductboardConfig{
			BaseURL:         DefaultBaseURL,
			RequestTimeout:  30,
			DefaultInstance: DefaultInstanceName,
			Instances:       make(map[string]*Instance),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      3,
			InitialDelayMs:   1000,
			MaxDelayMs:       30000,
			BreakerThreshold: 5,
			BreakerCooldown:  30,
			MaxPages:         50,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerSecond: 50,
			Burst:     0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from environment variables and defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) error {
	loadServerConfig(config)
	loadResilienceConfig(config)
	loadToolsAndLoggingConfig(config)
	return loadProductboardConfig(config)
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(config *Config) {
	if transport := os.Getenv("MCP_TRANSPORT"); transport != "" {
		config.Server.Transport = transport
	}
	if port := os.Getenv("MCP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MCP_HOST"); host != "" {
		config.Server.Host = host
	}
	if timeout := os.Getenv("MCP_SESSION_TIMEOUT_SECONDS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			config.Server.SessionTimeout = t
		}
	}
	if metrics := os.Getenv("MCP_METRICS_ENABLED"); metrics != "" {
		if m, err := strconv.ParseBool(metrics); err == nil {
			config.Server.MetricsEnabled = m
		}
	}
}

// loadResilienceConfig loads retry, breaker and rate limit settings
func loadResilienceConfig(config *Config) {
	if attempts := os.Getenv("PRODUCTBOARD_MAX_RETRIES"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Resilience.MaxAttempts = a
		}
	}
	if threshold := os.Getenv("PRODUCTBOARD_BREAKER_THRESHOLD"); threshold != "" {
		if th, err := strconv.Atoi(threshold); err == nil {
			config.Resilience.BreakerThreshold = th
		}
	}
	if cooldown := os.Getenv("PRODUCTBOARD_BREAKER_COOLDOWN_SECONDS"); cooldown != "" {
		if c, err := strconv.Atoi(cooldown); err == nil {
			config.Resilience.BreakerCooldown = c
		}
	}
	if maxPages := os.Getenv("PRODUCTBOARD_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Resilience.MaxPages = mp
		}
	}
	if perSecond := os.Getenv("PRODUCTBOARD_RATE_LIMIT"); perSecond != "" {
		if ps, err := strconv.Atoi(perSecond); err == nil {
			config.RateLimit.PerSecond = ps
			config.RateLimit.Enabled = ps > 0
		}
	}
	if burst := os.Getenv("PRODUCTBOARD_RATE_LIMIT_BURST"); burst != "" {
		if b, err := strconv.Atoi(burst); err == nil {
			config.RateLimit.Burst = b
		}
	}
}

func loadToolsAndLoggingConfig(config *Config) {
	if categories := os.Getenv("PRODUCTBOARD_ENABLED_CATEGORIES"); categories != "" {
		config.Tools.EnabledCategories = splitList(categories)
	}
	if manifest := os.Getenv("PRODUCTBOARD_TOOL_MANIFEST"); manifest != "" {
		config.Tools.ManifestPath = manifest
	}
	if mappings := os.Getenv("PRODUCTBOARD_ENTITY_MAPPINGS"); mappings != "" {
		config.Tools.EntityMappingsPath = mappings
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

// loadProductboardConfig loads the upstream settings and credentials. The
// instances file, when present, is merged with the single-token variables.
func loadProductboardConfig(config *Config) error {
	pb := &config.Productboard

	if baseURL := os.Getenv("PRODUCTBOARD_API_BASE_URL"); baseURL != "" {
		pb.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout := os.Getenv("PRODUCTBOARD_REQUEST_TIMEOUT_SECONDS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			pb.RequestTimeout = t
		}
	}

	if path := os.Getenv("PRODUCTBOARD_INSTANCES_FILE"); path != "" {
		pb.InstancesFile = path
		if err := LoadInstancesFile(config, path); err != nil {
			return err
		}
	}

	if def := os.Getenv("PRODUCTBOARD_DEFAULT_INSTANCE"); def != "" {
		pb.DefaultInstance = def
	}

	if token := os.Getenv("PRODUCTBOARD_API_TOKEN"); token != "" {
		inst, ok := pb.Instances[pb.DefaultInstance]
		if !ok {
			inst = &Instance{Name: pb.DefaultInstance}
			pb.Instances[pb.DefaultInstance] = inst
		}
		inst.APIToken = token
		if ws := os.Getenv("PRODUCTBOARD_WORKSPACE_ID"); ws != "" && !inst.HasWorkspace(ws) {
			inst.Workspaces = append(inst.Workspaces, ws)
		}
	}

	for _, inst := range pb.Instances {
		if inst.BaseURL == "" {
			inst.BaseURL = pb.BaseURL
		}
	}
	return nil
}

type instancesFile struct {
	DefaultInstance string               `yaml:"default_instance"`
	Instances       map[string]*Instance `yaml:"instances"`
}

// LoadInstancesFile merges a YAML credential file into config
func LoadInstancesFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read instances file: %w", err)
	}

	var file instancesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse instances file %s: %w", path, err)
	}

	if file.DefaultInstance != "" {
		config.Productboard.DefaultInstance = file.DefaultInstance
	}
	for name, inst := range file.Instances {
		if inst == nil {
			continue
		}
		inst.Name = name
		if inst.APIToken == "" {
			inst.APIToken = os.Getenv(tokenEnvName(name))
		}
		config.Productboard.Instances[name] = inst
	}
	return nil
}

// tokenEnvName is the variable that supplies an instance token when the
// instances file leaves it out, e.g. PRODUCTBOARD_API_TOKEN_STAGING.
func tokenEnvName(instance string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(instance))
	return "PRODUCTBOARD_API_TOKEN_" + name
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport %q: must be stdio or http", c.Server.Transport)
	}
	if c.Server.Transport == "http" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}

	if c.Productboard.BaseURL == "" {
		return fmt.Errorf("productboard base URL cannot be empty")
	}
	if c.Productboard.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if len(c.Productboard.Instances) == 0 {
		return fmt.Errorf("no Productboard credentials configured: set PRODUCTBOARD_API_TOKEN or PRODUCTBOARD_INSTANCES_FILE")
	}
	for name, inst := range c.Productboard.Instances {
		if inst.APIToken == "" {
			return fmt.Errorf("instance %s has no API token", name)
		}
	}

	if c.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.Resilience.BreakerThreshold < 1 {
		return fmt.Errorf("breaker threshold must be at least 1")
	}

	return c.RateLimiterConfig().Validate()
}

// RequestTimeoutDuration returns the per-call upstream timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.Productboard.RequestTimeout) * time.Second
}

// RateLimiterConfig builds the limiter settings, including per-instance overrides
func (c *Config) RateLimiterConfig() *ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.Disabled = !c.RateLimit.Enabled
	if c.RateLimit.PerSecond > 0 {
		rl.DefaultLimit = c.RateLimit.PerSecond
	}
	rl.DefaultBurst = c.RateLimit.Burst
	for name, inst := range c.Productboard.Instances {
		if inst.RateLimit != nil {
			rl.InstanceLimits[name] = inst.RateLimit
		}
	}
	return rl
}

// InstanceNames returns the configured instance names, sorted
func (c *Config) InstanceNames() []string {
	names := make([]string, 0, len(c.Productboard.Instances))
	for name := range c.Productboard.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveInstance selects credentials for a call: an explicit instance name
// wins, then the instance that lists workspaceID, then the default.
func (c *Config) ResolveInstance(instance, workspaceID string) (*Instance, error) {
	instances := c.Productboard.Instances

	if instance != "" {
		inst, ok := instances[instance]
		if !ok {
			return nil, mcperrors.NewValidationError("instance",
				fmt.Sprintf("unknown instance %q; configured: %s", instance, strings.Join(c.InstanceNames(), ", ")), instance)
		}
		if workspaceID != "" && len(inst.Workspaces) > 0 && !inst.HasWorkspace(workspaceID) {
			return nil, mcperrors.NewValidationError("workspaceId",
				fmt.Sprintf("workspace %q is not configured for instance %q", workspaceID, instance), workspaceID)
		}
		return inst, nil
	}

	if workspaceID != "" {
		for _, name := range c.InstanceNames() {
			if instances[name].HasWorkspace(workspaceID) {
				return instances[name], nil
			}
		}
		return nil, mcperrors.NewValidationError("workspaceId",
			fmt.Sprintf("no instance is configured for workspace %q", workspaceID), workspaceID)
	}

	if inst, ok := instances[c.Productboard.DefaultInstance]; ok {
		return inst, nil
	}
	if len(instances) == 1 {
		for _, inst := range instances {
			return inst, nil
		}
	}
	return nil, mcperrors.NewValidationError("instance",
		fmt.Sprintf("several instances are configured and none is the default; pass one of: %s", strings.Join(c.InstanceNames(), ", ")), nil)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
