package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/bus"
	"github.com/xkilldash9x/actiongate/internal/config"
	"github.com/xkilldash9x/actiongate/internal/observability"
	"github.com/xkilldash9x/actiongate/internal/swarm"
	"go.uber.org/zap"
)

type swarmOptions struct {
	planPath     string
	snapshotPath string
	actionsPath  string
	taskID       string
	stepID       string
	single       bool
	extract      bool
}

// swarmOutput is what the swarm command prints.
type swarmOutput struct {
	TaskID     string                 `json:"task_id"`
	Approved   bool                   `json:"plan_approved"`
	Planned    []schemas.Action       `json:"planned_actions"`
	Report     *swarm.ExecutionReport `json:"report,omitempty"`
	Statistics swarm.Statistics       `json:"statistics"`
}

func newSwarmCmd() *cobra.Command {
	var opts swarmOptions
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Run one planner/executor/validator cycle with a dry-run executor",
		Long: `Plans the candidate actions, has the validator judge the plan, and when it
is approved proposes and dry-runs each action. Nothing touches a browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if opts.single {
				cfg.SetSwarmEnabled(false)
			}
			return runSwarm(cmd.Context(), cfg, observability.GetLogger(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.planPath, "plan", "", "plan config file declaring affordances and guards (default planner.plan_file)")
	cmd.Flags().StringVar(&opts.snapshotPath, "snapshot", "", "page snapshot file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.actionsPath, "actions", "", "candidate actions file (JSON or YAML list)")
	cmd.Flags().StringVar(&opts.taskID, "task", "", "task id (default: generated)")
	cmd.Flags().StringVar(&opts.stepID, "step", "", "step id")
	cmd.Flags().BoolVar(&opts.single, "single-agent", false, "disable swarm mode and run as a single agent")
	cmd.Flags().BoolVar(&opts.extract, "extract-affordances", false, "also derive affordances from the snapshot's elements")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("actions")
	return cmd
}

// dryRunExecutor reports success for every action without performing it.
type dryRunExecutor struct {
	logger *zap.Logger
}

func (d dryRunExecutor) Execute(_ context.Context, action schemas.Action) (swarm.ExecutionOutcome, error) {
	d.logger.Info("Dry run", zap.Stringer("action", action))
	return swarm.ExecutionOutcome{Success: true, Result: map[string]interface{}{"dry_run": true}}, nil
}

func runSwarm(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts swarmOptions, out io.Writer) error {
	if opts.snapshotPath == "" || opts.actionsPath == "" {
		return errors.New("--snapshot and --actions are required")
	}
	snapshot, err := loadSnapshot(opts.snapshotPath)
	if err != nil {
		return err
	}
	actions, err := loadActions(opts.actionsPath)
	if err != nil {
		return err
	}
	planner, err := buildPlanner(cfg, opts.planPath, snapshot, opts.extract, logger)
	if err != nil {
		return err
	}
	if opts.taskID == "" {
		opts.taskID = uuid.New().String()
	}

	var b *bus.Bus
	if cfg.Swarm().Enabled {
		b = bus.Init(cfg.Bus(), logger)
	}

	coord, err := swarm.NewCoordinator(cfg.Swarm(), b, planner, dryRunExecutor{logger: logger.Named("dry_run")},
		swarm.Scope{TaskID: opts.taskID, StepID: opts.stepID}, logger)
	if err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start swarm: %w", err)
	}
	defer func() {
		if err := coord.Stop(); err != nil {
			logger.Warn("Failed to stop swarm", zap.Error(err))
		}
	}()

	planned, approved, err := coord.CoordinatePlanning(ctx, snapshot, actions)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	result := swarmOutput{TaskID: opts.taskID, Approved: approved, Planned: planned}
	if result.Planned == nil {
		result.Planned = []schemas.Action{}
	}
	if approved {
		report, err := coord.RunExecution(ctx, planned)
		if err != nil && !errors.Is(err, swarm.ErrAborted) {
			return fmt.Errorf("execution failed: %w", err)
		}
		result.Report = &report
	}
	result.Statistics = coord.GetStatistics()
	return writeJSON(out, result)
}
