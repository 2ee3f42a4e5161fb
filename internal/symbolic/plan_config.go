package symbolic

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/actiongate/api/schemas"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultWaitSeconds = 5

// PlanConfig is the declarative rule set attached to a workflow block.
type PlanConfig struct {
	Affordances     []Affordance      `yaml:"affordances"`
	Guards          []GuardCondition  `yaml:"guards"`
	FallbackActions []ActionBlueprint `yaml:"fallback_actions"`
	// LoopGuardWindow overrides the planner's loop window when positive.
	LoopGuardWindow int `yaml:"loop_guard_window"`
}

// ActionBlueprint describes a fallback action in a plan config.
type ActionBlueprint struct {
	ActionType schemas.ActionType    `yaml:"action_type"`
	Target     string                `yaml:"target,omitempty"`
	Text       *string               `yaml:"text,omitempty"`
	Option     *schemas.SelectOption `yaml:"option,omitempty"`
	Checked    *bool                 `yaml:"checked,omitempty"`
	Seconds    *int                  `yaml:"seconds,omitempty"`
	Reasoning  string                `yaml:"reasoning,omitempty"`
}

// Action converts the blueprint, enforcing the fields each action type needs.
func (b ActionBlueprint) Action() (schemas.Action, error) {
	a := schemas.Action{Type: b.ActionType, Target: b.Target, Reasoning: b.Reasoning}
	switch b.ActionType {
	case "":
		return schemas.Action{}, errors.New("blueprint has no action_type")
	case schemas.ActionClick:
		if b.Target == "" {
			return schemas.Action{}, errors.New("click requires a target")
		}
	case schemas.ActionInputText:
		if b.Target == "" || b.Text == nil {
			return schemas.Action{}, errors.New("input_text requires a target and text")
		}
		a.Text = *b.Text
	case schemas.ActionSelectOption:
		if b.Target == "" || b.Option == nil {
			return schemas.Action{}, errors.New("select_option requires a target and option")
		}
		opt := *b.Option
		a.Option = &opt
	case schemas.ActionCheckbox:
		if b.Target == "" || b.Checked == nil {
			return schemas.Action{}, errors.New("checkbox requires a target and checked flag")
		}
		checked := *b.Checked
		a.Checked = &checked
	case schemas.ActionWait:
		a.Seconds = defaultWaitSeconds
		if b.Seconds != nil {
			a.Seconds = *b.Seconds
		}
	}
	return a, nil
}

// ParsePlanConfig decodes a YAML plan config. Unknown keys are rejected.
func ParsePlanConfig(r io.Reader) (*PlanConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg PlanConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to decode plan config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPlanConfigFile reads and parses a YAML plan config from disk.
func LoadPlanConfigFile(path string) (*PlanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan config %s: %w", path, err)
	}
	cfg, err := ParsePlanConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("plan config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural requirements. Blueprints are not checked here;
// unusable ones are skipped at load time.
func (c *PlanConfig) Validate() error {
	if c.LoopGuardWindow < 0 {
		return errors.New("loop_guard_window must not be negative")
	}
	for i, a := range c.Affordances {
		if a.ActionType == "" {
			return fmt.Errorf("affordances[%d]: action_type is required", i)
		}
	}
	for i, g := range c.Guards {
		if g.Name == "" {
			return fmt.Errorf("guards[%d]: name is required", i)
		}
		if len(g.BlockedActionTypes) == 0 {
			return fmt.Errorf("guards[%d] (%s): blocked_action_types is required", i, g.Name)
		}
	}
	return nil
}

// LoadPlanConfig replaces the planner's rule set with everything cfg declares.
// The config is bound in full before anything is swapped in, so a failed load
// leaves the previous rules untouched. Fallback blueprints that cannot be
// converted are logged and skipped.
func (p *HybridPlanner) LoadPlanConfig(cfg *PlanConfig) error {
	if cfg == nil {
		return errors.New("plan config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	affordances := make([]boundAffordance, 0, len(cfg.Affordances))
	for i, a := range cfg.Affordances {
		bound, err := bindAffordance(a)
		if err != nil {
			return fmt.Errorf("affordances[%d]: %w", i, err)
		}
		affordances = append(affordances, bound)
	}
	guards := append([]GuardCondition(nil), cfg.Guards...)

	fallback := make([]schemas.Action, 0, len(cfg.FallbackActions))
	for _, bp := range cfg.FallbackActions {
		action, err := bp.Action()
		if err != nil {
			p.logger.Warn("Skipping fallback blueprint",
				zap.String("action_type", string(bp.ActionType)),
				zap.String("target", bp.Target),
				zap.Error(err),
			)
			continue
		}
		fallback = append(fallback, action)
	}

	p.mu.Lock()
	p.affordances = affordances
	p.guards = guards
	p.fallback = fallback
	if cfg.LoopGuardWindow > 0 {
		p.loops = NewLoopDetector(cfg.LoopGuardWindow, p.loopFactor, p.matcher)
	} else {
		p.loops.Reset()
	}
	p.mu.Unlock()

	p.logger.Info("Plan config loaded",
		zap.Int("affordances", len(affordances)),
		zap.Int("guards", len(guards)),
		zap.Int("fallback_actions", len(fallback)),
	)
	return nil
}
