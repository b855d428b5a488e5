package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/config"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/healthchain"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

var (
	cfgFile     string
	principalID string
	roleName    string
)

var rootCmd = &cobra.Command{
	Use:   "healthchain",
	Short: "Patient-controlled access ledger for encrypted medical records",
	Long: `healthchain stores encrypted medical records, lets patients grant and
revoke time-bounded access to them, evaluates every read against the
active grants, and keeps an append-only audit trail of each decision.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "healthchain.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&principalID, "as", "", "identity performing the operation")
	rootCmd.PersistentFlags().StringVar(&roleName, "role", string(types.RolePatient), "role of the identity: patient, doctor or admin")
}

// loadConfig reads the config file and environment, then applies logging settings
func loadConfig() (*types.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := healthchain.ConfigureLogging(cfg.Log, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

func principal() (types.Principal, error) {
	if principalID == "" {
		return types.Principal{}, fmt.Errorf("--as is required")
	}
	return types.Principal{ID: principalID, Role: types.Role(roleName)}, nil
}

// withService opens the configured service for the duration of fn
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *healthchain.Service, p types.Principal) error) error {
	p, err := principal()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := healthchain.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close service")
		}
	}()

	return fn(ctx, svc, p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
