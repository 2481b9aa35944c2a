package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/spacetime/internal/commitlog"
	"github.com/cuemby/spacetime/internal/migrate"
)

var migratePlanCmd = &cobra.Command{
	Use:   "migrate-plan <old-schema.yaml> <new-schema.yaml>",
	Short: "Print the automatic migration steps between two schema files, or why they require a manual migration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if logDir, _ := cmd.Flags().GetString("summarize-log"); logDir != "" {
			if err := printSummary(cmd, logDir); err != nil {
				return err
			}
		}

		oldDef, err := loadDatabaseDef(args[0])
		if err != nil {
			return err
		}
		newDef, err := loadDatabaseDef(args[1])
		if err != nil {
			return err
		}

		plan, err := migrate.PlanMigration(oldDef, newDef)
		if err != nil {
			var migErrs migrate.Errors
			if errors.As(err, &migErrs) {
				fmt.Fprintln(cmd.OutOrStdout(), "automatic migration rejected:")
				for _, e := range migErrs {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", e.Error())
				}
				return fmt.Errorf("spacetime: %d manual migration(s) required", len(migErrs))
			}
			return fmt.Errorf("spacetime: plan migration: %w", err)
		}

		printPlan(cmd, plan)
		return nil
	},
}

func init() {
	migratePlanCmd.Flags().String("summarize-log", "", "Also print commit-log statistics for the commit log at this directory, before the plan")
}

func printSummary(cmd *cobra.Command, dir string) error {
	sum, err := commitlog.Summarize(dir)
	if err != nil {
		return fmt.Errorf("spacetime: summarize commit log %s: %w", dir, err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "commit log %s: %d segment(s), %d commit(s), %d record(s), offsets [%d, %d], %d bytes",
		dir, sum.SegmentCount, sum.CommitCount, sum.RecordCount, sum.MinTxOffset, sum.MaxTxOffset, sum.TotalSizeBytes)
	if sum.TailCorrupted {
		fmt.Fprint(out, " (tail corrupted)")
	}
	fmt.Fprintln(out)
	return nil
}

func printPlan(cmd *cobra.Command, plan *migrate.Plan) {
	out := cmd.OutOrStdout()
	if len(plan.Prechecks) == 0 && len(plan.Steps) == 0 {
		fmt.Fprintln(out, "no schema changes")
		return
	}
	if len(plan.Prechecks) > 0 {
		fmt.Fprintln(out, "prechecks:")
		for _, p := range plan.Prechecks {
			fmt.Fprintf(out, "  - table %s: column %d must hold no value outside range [%d, %d] or at or above sequence start %d\n",
				p.Table, p.Sequence.ColPos, p.Sequence.Min, p.Sequence.Max, p.Sequence.Start)
		}
	}
	fmt.Fprintln(out, "steps:")
	for _, s := range plan.Steps {
		switch {
		case s.IndexName != "":
			fmt.Fprintf(out, "  - %s table=%s index=%s\n", s.Kind, s.Table, s.IndexName)
		case s.Access != "":
			fmt.Fprintf(out, "  - %s table=%s access=%s\n", s.Kind, s.Table, s.Access)
		case s.Kind == migrate.AddSequence || s.Kind == migrate.RemoveSequence:
			fmt.Fprintf(out, "  - %s table=%s column=%d\n", s.Kind, s.Table, s.Sequence.ColPos)
		default:
			fmt.Fprintf(out, "  - %s table=%s\n", s.Kind, s.Table)
		}
	}
}
