// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "actiongate", cfg.Logger().ServiceName)
	assert.Equal(t, 5, cfg.Planner().LoopWindow)
	assert.Equal(t, 4, cfg.Planner().LoopHistoryFactor)
	assert.Equal(t, 1000, cfg.Bus().HistoryCapacity)
	assert.Equal(t, 256, cfg.Bus().SubscriberBuffer)
	assert.True(t, cfg.Swarm().Enabled)
	assert.Equal(t, 5*time.Second, cfg.Swarm().PlanTimeout)
	assert.Equal(t, 5*time.Second, cfg.Swarm().ApprovalTimeout)
	assert.Equal(t, 3*time.Second, cfg.Swarm().ConsensusTimeout)
	assert.Equal(t, -1, cfg.Swarm().ConsensusDefault)
	assert.Equal(t, 0.8, cfg.Swarm().AutoApproveThreshold)
	assert.Equal(t, []string{"terminate", "complete"}, cfg.Swarm().HighRiskActions)

	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetSwarmEnabled(false)
	iface.SetSwarmApprovalTimeout(250 * time.Millisecond)
	iface.SetPlannerLoopWindow(3)

	assert.False(t, iface.Swarm().Enabled)
	assert.Equal(t, 250*time.Millisecond, iface.Swarm().ApprovalTimeout)
	assert.Equal(t, 3, iface.Planner().LoopWindow)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Planner Validation", func(t *testing.T) {
		valid := PlannerConfig{LoopWindow: 5, LoopHistoryFactor: 4}
		assert.NoError(t, valid.Validate())

		disabled := PlannerConfig{LoopWindow: 0}
		assert.NoError(t, disabled.Validate(), "a zero window disables loop detection")

		negative := valid
		negative.LoopWindow = -1
		err := negative.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "loop_window must not be negative")

		tooShallow := valid
		tooShallow.LoopHistoryFactor = 1
		err = tooShallow.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "loop_history_factor must be at least 2")
	})

	t.Run("Bus Validation", func(t *testing.T) {
		valid := BusConfig{HistoryCapacity: 10, SubscriberBuffer: 1}
		assert.NoError(t, valid.Validate())

		noHistory := valid
		noHistory.HistoryCapacity = 0
		err := noHistory.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "history_capacity must be a positive integer")

		noBuffer := valid
		noBuffer.SubscriberBuffer = -4
		err = noBuffer.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "subscriber_buffer must be a positive integer")
	})

	t.Run("Swarm Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Swarm()
		assert.NoError(t, valid.Validate())

		zeroTimeout := valid
		zeroTimeout.ConsensusTimeout = 0
		err := zeroTimeout.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive durations")

		badThreshold := valid
		badThreshold.AutoApproveThreshold = 1.1
		err = badThreshold.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "auto_approve_threshold must be between 0.0 and 1.0")

		badConfidence := valid
		badConfidence.ProposalConfidence = -0.1
		err = badConfidence.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "proposal_confidence must be between 0.0 and 1.0")

		badDefault := valid
		badDefault.ConsensusDefault = -2
		err = badDefault.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "consensus_default must be -1")

		inverted := valid
		inverted.MediumRiskPlanSize = 20
		err = inverted.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "medium_risk_plan_size must not exceed high_risk_plan_size")

		negativeRate := valid
		negativeRate.ExecutionRate = -1
		err = negativeRate.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "execution_rate must not be negative")
	})

	t.Run("Top Level Wraps Section Errors", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BusCfg.HistoryCapacity = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bus configuration invalid")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
planner:
  loop_window: 3
bus:
  history_capacity: 50
swarm:
  approval_timeout: 750ms
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Planner().LoopWindow)
		assert.Equal(t, 50, cfg.Bus().HistoryCapacity)
		assert.Equal(t, 750*time.Millisecond, cfg.Swarm().ApprovalTimeout)
		// Untouched keys keep their defaults.
		assert.Equal(t, 256, cfg.Bus().SubscriberBuffer)
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("bus.subscriber_buffer", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "subscriber_buffer must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		yamlConfig := []byte(`
swarm:
  enabled: true
bus:
  history_capacity: 20
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		t.Setenv("ACTIONGATE_SWARM_ENABLED", "false")
		t.Setenv("ACTIONGATE_BUS_HISTORY_CAPACITY", "64")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Env vars override the config buffer.
		assert.False(t, cfg.Swarm().Enabled)
		assert.Equal(t, 64, cfg.Bus().HistoryCapacity)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/actiongate.log
planner:
  plan_file: plans/login.yaml
swarm:
  consensus_timeout: 2s
  high_risk_actions: ["terminate", "upload_file"]
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "/var/log/actiongate.log", cfg.Logger().LogFile)
	assert.Equal(t, "plans/login.yaml", cfg.Planner().PlanFile)
	assert.Equal(t, 2*time.Second, cfg.Swarm().ConsensusTimeout)
	assert.Equal(t, []string{"terminate", "upload_file"}, cfg.Swarm().HighRiskActions)
}
