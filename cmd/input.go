package cmd

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/config"
	"github.com/xkilldash9x/actiongate/internal/symbolic"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot and action files may be JSON or YAML; YAML parsing accepts both.
func decodeFile(path string, out interface{}) error {
	resolved, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("could not resolve path %q: %w", path, err)
	}
	f, err := os.Open(resolved)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func loadSnapshot(path string) (*schemas.Snapshot, error) {
	var doc schemas.SnapshotDocument
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	return doc.Snapshot(), nil
}

func loadActions(path string) ([]schemas.Action, error) {
	var actions []schemas.Action
	if err := decodeFile(path, &actions); err != nil {
		return nil, err
	}
	for i, a := range actions {
		if a.Type == "" {
			return nil, fmt.Errorf("%s: action %d has no type", path, i)
		}
	}
	return actions, nil
}

// buildPlanner creates a hybrid planner loaded from planPath, or from the
// configured plan file when planPath is empty. With extract set, affordances
// derived from the snapshot are registered after the plan's own.
func buildPlanner(cfg *config.Config, planPath string, snapshot *schemas.Snapshot, extract bool, logger *zap.Logger) (*symbolic.HybridPlanner, error) {
	planner := symbolic.NewHybridPlanner(cfg.Planner(), logger)

	if planPath == "" {
		planPath = cfg.Planner().PlanFile
	}
	if planPath != "" {
		resolved, err := homedir.Expand(planPath)
		if err != nil {
			return nil, fmt.Errorf("could not resolve plan path %q: %w", planPath, err)
		}
		plan, err := symbolic.LoadPlanConfigFile(resolved)
		if err != nil {
			return nil, err
		}
		if err := planner.LoadPlanConfig(plan); err != nil {
			return nil, err
		}
	}

	if extract && snapshot != nil {
		for _, a := range symbolic.ExtractAffordances(snapshot.Elements()) {
			if err := planner.RegisterAffordance(a); err != nil {
				return nil, fmt.Errorf("failed to register extracted affordance %s: %w", a, err)
			}
		}
	}
	return planner, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
