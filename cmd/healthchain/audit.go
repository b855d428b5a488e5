package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/healthchain"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count records, grants and audit entries",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	auditCmd.Flags().String("actor", "", "only entries by this actor")
	auditCmd.Flags().String("target", "", "only entries about this target")
	auditCmd.Flags().StringSlice("action", nil, "only these actions")
	auditCmd.Flags().String("since", "", "RFC3339 lower bound (inclusive)")
	auditCmd.Flags().String("until", "", "RFC3339 upper bound (exclusive)")
	auditCmd.Flags().Int("limit", 50, "maximum number of entries (0 for all)")

	rootCmd.AddCommand(auditCmd, statsCmd)
}

func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return t, nil
}

func auditFilterFromFlags(cmd *cobra.Command) (types.AuditFilter, error) {
	var filter types.AuditFilter
	var err error

	filter.ActorID, _ = cmd.Flags().GetString("actor")
	filter.TargetID, _ = cmd.Flags().GetString("target")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	actions, _ := cmd.Flags().GetStringSlice("action")
	for _, a := range actions {
		filter.Actions = append(filter.Actions, types.AuditAction(a))
	}
	if filter.Since, err = parseTimeFlag(cmd, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTimeFlag(cmd, "until"); err != nil {
		return filter, err
	}
	if filter.Limit < 0 {
		return filter, fmt.Errorf("--limit must be non-negative")
	}
	return filter, nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	filter, err := auditFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		entries, err := svc.AuditEntries(ctx, p, filter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		stats, err := svc.Stats(ctx, p)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	})
}
