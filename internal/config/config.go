// Package config handles configuration loading and management for Quorum.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Quorum.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Router    RouterConfig    `mapstructure:"router"`
	Scaling   ScalingConfig   `mapstructure:"scaling"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Server    ServerConfig    `mapstructure:"server"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds reasoning backend settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes reasoning calls through AWS Bedrock instead of the
	// Anthropic API.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// RouterConfig holds task routing and retry settings.
type RouterConfig struct {
	// MaxRetries is the number of automatic retries before a task errors out.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBaseDelay is the first retry delay; each retry doubles it.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
	// ApprovalEscalationTimeout is how long a task may wait for approval
	// before an escalation event is emitted.
	ApprovalEscalationTimeout time.Duration `mapstructure:"approval_escalation_timeout"`
	// ApprovalRequiredTypes lists task types that always pause for human
	// sign-off before completing, even when the executor does not ask.
	ApprovalRequiredTypes []string `mapstructure:"approval_required_types"`
	// TaskTimeouts maps task types to execution timeouts.
	TaskTimeouts map[string]time.Duration `mapstructure:"task_timeouts"`
	// DefaultTaskTimeout applies to task types without an explicit timeout.
	DefaultTaskTimeout time.Duration `mapstructure:"default_task_timeout"`
	// EventBufferSize is the capacity of the event emitter channel.
	EventBufferSize int `mapstructure:"event_buffer_size"`
}

// PoolConfig holds per-role worker pool bounds.
type PoolConfig struct {
	Role    string `mapstructure:"role"`
	MinSize int    `mapstructure:"min_size"`
	MaxSize int    `mapstructure:"max_size"`
	Initial int    `mapstructure:"initial"`
}

// ScalingConfig holds scaling controller settings.
type ScalingConfig struct {
	// Interval is the evaluation tick period.
	Interval time.Duration `mapstructure:"interval"`
	// HighWatermark is the pressure above which a pool scales up.
	HighWatermark float64 `mapstructure:"high_watermark"`
	// LowWatermark is the pressure below which a pool may scale down.
	LowWatermark float64 `mapstructure:"low_watermark"`
	// TargetLatencyMS is the per-role latency target in milliseconds.
	TargetLatencyMS float64 `mapstructure:"target_latency_ms"`
	// UpFactor is the fraction of current size added when scaling up.
	UpFactor float64 `mapstructure:"up_factor"`
	// DownFactor is the fraction of current size removed when scaling down.
	DownFactor float64 `mapstructure:"down_factor"`
	// UpCooldown is the minimum time between scale-ups of one pool.
	UpCooldown time.Duration `mapstructure:"up_cooldown"`
	// DownCooldown is the minimum time between scale-downs of one pool.
	DownCooldown time.Duration `mapstructure:"down_cooldown"`
	// LatencyWindow is the number of recent task latencies averaged per role.
	LatencyWindow int `mapstructure:"latency_window"`
	// Pools lists per-role bounds. Roles not listed use the defaults below.
	Pools []PoolConfig `mapstructure:"pools"`
	// DefaultMinSize applies to pools without explicit bounds.
	DefaultMinSize int `mapstructure:"default_min_size"`
	// DefaultMaxSize applies to pools without explicit bounds.
	DefaultMaxSize int `mapstructure:"default_max_size"`
}

// BridgeConfig holds protocol bridge settings.
type BridgeConfig struct {
	// ProtocolVersion is the version advertised to peers.
	ProtocolVersion string `mapstructure:"protocol_version"`
	// CompatibleVersions lists fallback versions offered during negotiation,
	// in preference order.
	CompatibleVersions []string `mapstructure:"compatible_versions"`
	// ConversationIdleTimeout closes a peer conversation after this much
	// inactivity.
	ConversationIdleTimeout time.Duration `mapstructure:"conversation_idle_timeout"`
	// RoleMap maps internal roles to external protocol roles. Unmapped roles
	// fall back to "assistant".
	RoleMap map[string]string `mapstructure:"role_map"`
}

// AlertingConfig holds alert engine settings.
type AlertingConfig struct {
	// RulesFile is the YAML rules file watched for changes.
	RulesFile string `mapstructure:"rules_file"`
	// EvalInterval is the rule evaluation tick period.
	EvalInterval time.Duration `mapstructure:"eval_interval"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// JWTSecret signs and verifies API bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath is the sqlite database file. Empty means the XDG data dir.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
/// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, QUORUM_JWT_SECRET)
// 2. Project config (.quorum.yaml in current directory or parent)
// 3. User config (~/.config/quorum/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("server.jwt_secret", "QUORUM_JWT_SECRET")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Server.JWTSecret = expandEnv(cfg.Server.JWTSecret)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Server.JWTSecret = expandEnv(cfg.Server.JWTSecret)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("router.max_retries", cfg.Router.MaxRetries)
	v.Set("router.retry_base_delay", cfg.Router.RetryBaseDelay.String())
	v.Set("router.approval_escalation_timeout", cfg.Router.ApprovalEscalationTimeout.String())
	v.Set("scaling.interval", cfg.Scaling.Interval.String())
	v.Set("scaling.high_watermark", cfg.Scaling.HighWatermark)
	v.Set("scaling.low_watermark", cfg.Scaling.LowWatermark)
	v.Set("bridge.protocol_version", cfg.Bridge.ProtocolVersion)
	v.Set("alerting.rules_file", cfg.Alerting.RulesFile)
	v.Set("alerting.eval_interval", cfg.Alerting.EvalInterval.String())
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("state.db_path", cfg.State.DBPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("router.max_retries", 3)
	v.SetDefault("router.retry_base_delay", "1s")
	v.SetDefault("router.retry_max_delay", "30s")
	v.SetDefault("router.approval_escalation_timeout", "30m")
	v.SetDefault("router.approval_required_types", []string{})
	v.SetDefault("router.default_task_timeout", "15m")
	v.SetDefault("router.event_buffer_size", 100)

	v.SetDefault("scaling.interval", "15s")
	v.SetDefault("scaling.high_watermark", 2.0)
	v.SetDefault("scaling.low_watermark", 0.25)
	v.SetDefault("scaling.target_latency_ms", 60000)
	v.SetDefault("scaling.up_factor", 0.5)
	v.SetDefault("scaling.down_factor", 0.25)
	v.SetDefault("scaling.up_cooldown", "60s")
	v.SetDefault("scaling.down_cooldown", "300s")
	v.SetDefault("scaling.latency_window", 20)
	v.SetDefault("scaling.default_min_size", 1)
	v.SetDefault("scaling.default_max_size", 8)

	v.SetDefault("bridge.protocol_version", "2.0")
	v.SetDefault("bridge.compatible_versions", []string{"2.0", "1.1", "1.0"})
	v.SetDefault("bridge.conversation_idle_timeout", "10m")

	v.SetDefault("alerting.rules_file", "")
	v.SetDefault("alerting.eval_interval", "10s")

	v.SetDefault("server.addr", ":8420")
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("state.db_path", "")
}

// getUserConfigDir returns the XDG config directory for Quorum.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quorum")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quorum")
	}
	return filepath.Join(home, ".config", "quorum")
}

// findProjectConfig searches for .quorum.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quorum.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Router: RouterConfig{
			MaxRetries:                3,
			RetryBaseDelay:            time.Second,
			RetryMaxDelay:             30 * time.Second,
			ApprovalEscalationTimeout: 30 * time.Minute,
			DefaultTaskTimeout:        15 * time.Minute,
			EventBufferSize:           100,
		},
		Scaling: ScalingConfig{
			Interval:        15 * time.Second,
			HighWatermark:   2.0,
			LowWatermark:    0.25,
			TargetLatencyMS: 60000,
			UpFactor:        0.5,
			DownFactor:      0.25,
			UpCooldown:      60 * time.Second,
			DownCooldown:    300 * time.Second,
			LatencyWindow:   20,
			DefaultMinSize:  1,
			DefaultMaxSize:  8,
		},
		Bridge: BridgeConfig{
			ProtocolVersion:         "2.0",
			CompatibleVersions:      []string{"2.0", "1.1", "1.0"},
			ConversationIdleTimeout: 10 * time.Minute,
		},
		Alerting: AlertingConfig{
			EvalInterval: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8420",
		},
	}
}

// TaskTimeout returns the execution timeout for a task type.
func (rc *RouterConfig) TaskTimeout(taskType string) time.Duration {
	if d, ok := rc.TaskTimeouts[taskType]; ok && d > 0 {
		return d
	}
	if rc.DefaultTaskTimeout > 0 {
		return rc.DefaultTaskTimeout
	}
	return 15 * time.Minute
}

// PoolBounds returns the min, max, and initial size for a role's pool.
func (sc *ScalingConfig) PoolBounds(role string) (min, max, initial int) {
	for _, p := range sc.Pools {
		if p.Role == role {
			min, max, initial = p.MinSize, p.MaxSize, p.Initial
			if initial == 0 {
				initial = min
			}
			return min, max, initial
		}
	}
	min, max = sc.DefaultMinSize, sc.DefaultMaxSize
	if min <= 0 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min, max, min
}
