// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Planner() PlannerConfig
	Bus() BusConfig
	Swarm() SwarmConfig

	// Swarm Setters
	SetSwarmEnabled(bool)
	SetSwarmApprovalTimeout(d time.Duration)

	// Planner Setters
	SetPlannerLoopWindow(int)
}

// Config holds the entire application configuration.
// Sections are reached through the Interface getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	PlannerCfg PlannerConfig `mapstructure:"planner" yaml:"planner"`
	BusCfg     BusConfig     `mapstructure:"bus" yaml:"bus"`
	SwarmCfg   SwarmConfig   `mapstructure:"swarm" yaml:"swarm"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Planner() PlannerConfig { return c.PlannerCfg }
func (c *Config) Bus() BusConfig         { return c.BusCfg }
func (c *Config) Swarm() SwarmConfig     { return c.SwarmCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetSwarmEnabled(b bool) { c.SwarmCfg.Enabled = b }
func (c *Config) SetSwarmApprovalTimeout(d time.Duration) {
	c.SwarmCfg.ApprovalTimeout = d
}
func (c *Config) SetPlannerLoopWindow(n int) { c.PlannerCfg.LoopWindow = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// PlannerConfig tunes the symbolic validation engine.
type PlannerConfig struct {
	// LoopWindow is the fingerprint window length used for loop detection.
	// Zero disables loop detection.
	LoopWindow int `mapstructure:"loop_window" yaml:"loop_window"`
	// LoopHistoryFactor bounds the retained fingerprint history to
	// LoopWindow * LoopHistoryFactor entries.
	LoopHistoryFactor int `mapstructure:"loop_history_factor" yaml:"loop_history_factor"`
	// PlanFile optionally points to a YAML plan configuration loaded at startup.
	PlanFile string `mapstructure:"plan_file" yaml:"plan_file"`
}

// BusConfig sizes the in-process message bus.
type BusConfig struct {
	HistoryCapacity  int `mapstructure:"history_capacity" yaml:"history_capacity"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
}

// SwarmConfig configures the planner/executor/validator coordination layer.
type SwarmConfig struct {
	Enabled              bool          `mapstructure:"enabled" yaml:"enabled"`
	PlanTimeout          time.Duration `mapstructure:"plan_timeout" yaml:"plan_timeout"`
	ApprovalTimeout      time.Duration `mapstructure:"approval_timeout" yaml:"approval_timeout"`
	ConsensusTimeout     time.Duration `mapstructure:"consensus_timeout" yaml:"consensus_timeout"`
	ConsensusDefault     int           `mapstructure:"consensus_default" yaml:"consensus_default"`
	AutoApproveThreshold float64       `mapstructure:"auto_approve_threshold" yaml:"auto_approve_threshold"`
	ProposalConfidence   float64       `mapstructure:"proposal_confidence" yaml:"proposal_confidence"`
	HighRiskPlanSize     int           `mapstructure:"high_risk_plan_size" yaml:"high_risk_plan_size"`
	MediumRiskPlanSize   int           `mapstructure:"medium_risk_plan_size" yaml:"medium_risk_plan_size"`
	HighRiskActions      []string      `mapstructure:"high_risk_actions" yaml:"high_risk_actions"`
	EmitThoughts         bool          `mapstructure:"emit_thoughts" yaml:"emit_thoughts"`
	// ExecutionRate caps executed actions per second. Zero means unlimited.
	ExecutionRate float64 `mapstructure:"execution_rate" yaml:"execution_rate"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "actiongate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Planner --
	v.SetDefault("planner.loop_window", 5)
	v.SetDefault("planner.loop_history_factor", 4)

	// -- Bus --
	v.SetDefault("bus.history_capacity", 1000)
	v.SetDefault("bus.subscriber_buffer", 256)

	// -- Swarm --
	v.SetDefault("swarm.enabled", true)
	v.SetDefault("swarm.plan_timeout", "5s")
	v.SetDefault("swarm.approval_timeout", "5s")
	v.SetDefault("swarm.consensus_timeout", "3s")
	v.SetDefault("swarm.consensus_default", -1)
	v.SetDefault("swarm.auto_approve_threshold", 0.8)
	v.SetDefault("swarm.proposal_confidence", 0.9)
	v.SetDefault("swarm.high_risk_plan_size", 10)
	v.SetDefault("swarm.medium_risk_plan_size", 5)
	v.SetDefault("swarm.high_risk_actions", []string{"terminate", "complete"})
	v.SetDefault("swarm.emit_thoughts", true)
	v.SetDefault("swarm.execution_rate", 0.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ACTIONGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.PlannerCfg.Validate(); err != nil {
		return fmt.Errorf("planner configuration invalid: %w", err)
	}
	if err := c.BusCfg.Validate(); err != nil {
		return fmt.Errorf("bus configuration invalid: %w", err)
	}
	if err := c.SwarmCfg.Validate(); err != nil {
		return fmt.Errorf("swarm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the planner settings.
func (p *PlannerConfig) Validate() error {
	if p.LoopWindow < 0 {
		return fmt.Errorf("loop_window must not be negative")
	}
	if p.LoopWindow > 0 && p.LoopHistoryFactor < 2 {
		return fmt.Errorf("loop_history_factor must be at least 2 when loop detection is enabled")
	}
	return nil
}

// Validate checks the bus settings.
func (b *BusConfig) Validate() error {
	if b.HistoryCapacity <= 0 {
		return fmt.Errorf("history_capacity must be a positive integer")
	}
	if b.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber_buffer must be a positive integer")
	}
	return nil
}

// Validate checks the swarm settings. Timeouts are required even when the
// swarm is disabled so that toggling it at runtime stays safe.
func (s *SwarmConfig) Validate() error {
	if s.PlanTimeout <= 0 || s.ApprovalTimeout <= 0 || s.ConsensusTimeout <= 0 {
		return fmt.Errorf("plan_timeout, approval_timeout and consensus_timeout must be positive durations")
	}
	if s.AutoApproveThreshold < 0.0 || s.AutoApproveThreshold > 1.0 {
		return fmt.Errorf("auto_approve_threshold must be between 0.0 and 1.0")
	}
	if s.ProposalConfidence < 0.0 || s.ProposalConfidence > 1.0 {
		return fmt.Errorf("proposal_confidence must be between 0.0 and 1.0")
	}
	if s.ConsensusDefault < -1 {
		return fmt.Errorf("consensus_default must be -1 (no-op) or an option index")
	}
	if s.MediumRiskPlanSize > s.HighRiskPlanSize {
		return fmt.Errorf("medium_risk_plan_size must not exceed high_risk_plan_size")
	}
	if s.ExecutionRate < 0 {
		return fmt.Errorf("execution_rate must not be negative")
	}
	return nil
}
