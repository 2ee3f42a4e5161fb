package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/config"
	"github.com/xkilldash9x/actiongate/internal/observability"
	"github.com/xkilldash9x/actiongate/internal/symbolic"
	"go.uber.org/zap"
)

type validateOptions struct {
	planPath     string
	snapshotPath string
	actionsPath  string
	currentURL   string
	taskID       string
	fallback     bool
	extract      bool
}

// validateOutput is what the validate command prints.
type validateOutput struct {
	Audit   symbolic.AuditRecord `json:"audit"`
	Actions []schemas.Action     `json:"actions"`
}

func newValidateCmd() *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate candidate actions against a plan config and a page snapshot",
		Long: `Runs one validation pass and prints the audit record as JSON together with
the actions that would be executed. With --fallback, a pass that admits no
action yields the plan's fallback actions instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg, observability.GetLogger(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.planPath, "plan", "", "plan config file declaring affordances and guards (default planner.plan_file)")
	cmd.Flags().StringVar(&opts.snapshotPath, "snapshot", "", "page snapshot file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.actionsPath, "actions", "", "candidate actions file (JSON or YAML list)")
	cmd.Flags().StringVar(&opts.currentURL, "url", "", "override the snapshot's URL")
	cmd.Flags().StringVar(&opts.taskID, "task", "", "task id recorded in the audit context")
	cmd.Flags().BoolVar(&opts.fallback, "fallback", false, "use fallback actions when nothing is admitted")
	cmd.Flags().BoolVar(&opts.extract, "extract-affordances", false, "also derive affordances from the snapshot's elements")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("actions")
	return cmd
}

// runValidate holds the command's logic with its dependencies passed in.
func runValidate(_ context.Context, cfg *config.Config, logger *zap.Logger, opts validateOptions, out io.Writer) error {
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

	result := planner.ValidateAndFilterActions(actions, snapshot, opts.currentURL, symbolic.ValidationContext{TaskID: opts.taskID})
	final := result.Allowed
	if opts.fallback {
		final = planner.ReconcileWithFallback(result, nil)
	}
	if final == nil {
		final = []schemas.Action{}
	}

	logger.Info("Validation finished",
		zap.Int("allowed", len(result.Allowed)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("final", len(final)),
	)
	return writeJSON(out, validateOutput{Audit: planner.ExportAuditLog(result), Actions: final})
}
