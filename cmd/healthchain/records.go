package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/access"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/healthchain"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Store a record",
	Long: `Stores a record for --owner (defaults to --as). Plaintext from --data or --file
is sealed with the configured sealer; --ciphertext and --nonce (base64) store
an already sealed payload.`,
	Args: cobra.NoArgs,
	RunE: runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <record-id>",
	Short: "Read a record if access is allowed",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List an owner's records visible to the caller",
	Args:  cobra.NoArgs,
	RunE:  runRecords,
}

var checkCmd = &cobra.Command{
	Use:   "check <owner-id>",
	Short: "Evaluate access to an owner's records",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <record-id>",
	Short: "Check a stored record against its content hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	putCmd.Flags().String("owner", "", "record owner (defaults to --as)")
	putCmd.Flags().String("category", string(types.CategoryGeneral), "general, lab, diagnosis or prescription")
	putCmd.Flags().String("data", "", "plaintext to seal")
	putCmd.Flags().String("file", "", "file whose contents are sealed")
	putCmd.Flags().String("ciphertext", "", "base64 sealed payload")
	putCmd.Flags().String("nonce", "", "base64 nonce of the sealed payload")
	putCmd.MarkFlagsMutuallyExclusive("data", "file", "ciphertext")

	getCmd.Flags().Bool("decrypt", false, "print the unsealed plaintext")
	recordsCmd.Flags().String("owner", "", "record owner (defaults to --as)")
	checkCmd.Flags().String("record", "", "evaluate a single record")

	rootCmd.AddCommand(putCmd, getCmd, recordsCmd, checkCmd, verifyCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	category, _ := cmd.Flags().GetString("category")
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")
	ciphertextB64, _ := cmd.Flags().GetString("ciphertext")
	nonceB64, _ := cmd.Flags().GetString("nonce")

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		var (
			rec *types.Record
			err error
		)
		switch {
		case ciphertextB64 != "":
			ciphertext, decodeErr := base64.StdEncoding.DecodeString(ciphertextB64)
			if decodeErr != nil {
				return fmt.Errorf("decoding --ciphertext: %w", decodeErr)
			}
			nonce, decodeErr := base64.StdEncoding.DecodeString(nonceB64)
			if decodeErr != nil {
				return fmt.Errorf("decoding --nonce: %w", decodeErr)
			}
			rec, err = svc.PutSealed(ctx, p, owner, ciphertext, nonce, types.RecordCategory(category))
		case file != "":
			plaintext, readErr := os.ReadFile(file)
			if readErr != nil {
				return fmt.Errorf("reading %s: %w", file, readErr)
			}
			rec, err = svc.PutPlaintext(ctx, p, owner, plaintext, types.RecordCategory(category))
		case data != "":
			rec, err = svc.PutPlaintext(ctx, p, owner, []byte(data), types.RecordCategory(category))
		default:
			return fmt.Errorf("one of --data, --file or --ciphertext is required")
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	})
}

// decisionOutput is the printable form of an access decision
type decisionOutput struct {
	Allowed      bool          `json:"allowed"`
	Reason       access.Reason `json:"reason,omitempty"`
	PermissionID string        `json:"permissionId,omitempty"`
}

func toDecisionOutput(d access.Decision) decisionOutput {
	out := decisionOutput{Allowed: d.Allowed, Reason: d.Reason}
	if d.Grant != nil {
		out.PermissionID = d.Grant.ID
	}
	return out
}

func runGet(cmd *cobra.Command, args []string) error {
	decrypt, _ := cmd.Flags().GetBool("decrypt")

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		if decrypt {
			plaintext, decision, err := svc.OpenRecord(ctx, p, args[0])
			if err != nil {
				return err
			}
			if !decision.Allowed {
				return printJSON(cmd.OutOrStdout(), toDecisionOutput(decision))
			}
			_, err = cmd.OutOrStdout().Write(append(plaintext, '\n'))
			return err
		}

		rec, decision, err := svc.ReadRecord(ctx, p, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Decision decisionOutput `json:"decision"`
			Record   *types.Record  `json:"record,omitempty"`
		}{toDecisionOutput(decision), rec})
	})
}

func runRecords(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		records, decision, err := svc.ListRecords(ctx, p, owner)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Decision decisionOutput  `json:"decision"`
			Records  []*types.Record `json:"records"`
		}{toDecisionOutput(decision), records})
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	recordID, _ := cmd.Flags().GetString("record")

	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		decision, err := svc.CheckAccess(ctx, p, args[0], recordID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), toDecisionOutput(decision))
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *healthchain.Service, p types.Principal) error {
		ok, err := svc.VerifyRecord(ctx, p, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"recordId": args[0], "intact": ok})
	})
}
