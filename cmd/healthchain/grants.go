package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/healthchain"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

var grantCmd = &cobra.Command{
	Use:   "grant <grantee-id>",
	Short: "Grant time-bounded access to your records",
	Args:  cobra.ExactArgs(1),
	RunE:  runGrant,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <permission-id>",
	Short: "Revoke one of your grants",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "List your grants, or the active grants to one grantee",
	Args:  cobra.NoArgs,
	RunE:  runGrants,
}

func init() {
	grantCmd.Flags().String("type", string(types.AccessFull), "full, recent, labs or specific")
	grantCmd.Flags().Float64("hours", 0, "grant duration in hours (0 uses the configured default)")
	grantCmd.Flags().StringSlice("record", nil, "record ids covered by a specific grant")

	grantsCmd.Flags().String("grantee", "", "only active grants to this grantee")

	rootCmd.AddCommand(grantCmd, revokeCmd, grantsCmd)
}

func runGrant(cmd *cobra.Command, args []string) error {
	accessType, _ := cmd.Flags().GetString("type")
	hours, _ := cmd.Flags().GetFloat64("hours")
	recordIDs, _ := cmd.Flags().GetStringSlice("record")

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		permission, err := svc.Grant(ctx, p, args[0], types.AccessType(accessType), hours, recordIDs...)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), permission)
	})
}

func runRevoke(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		permission, err := svc.Revoke(ctx, p, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), permission)
	})
}

// grantOutput adds the state derived at listing time
type grantOutput struct {
	*types.Permission
	State types.PermissionState `json:"state"`
}

func runGrants(cmd *cobra.Command, args []string) error {
	grantee, _ := cmd.Flags().GetString("grantee")

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		var (
			permissions []*types.Permission
			err         error
		)
		if grantee != "" {
			permissions, err = svc.ActiveGrants(ctx, p, grantee)
		} else {
			permissions, err = svc.ListGrants(ctx, p)
		}
		if err != nil {
			return err
		}

		now := svc.Now()
		out := make([]grantOutput, 0, len(permissions))
		for _, permission := range permissions {
			out = append(out, grantOutput{Permission: permission, State: permission.StateAt(now)})
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}
