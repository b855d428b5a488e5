package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/config"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms/credentials/symmetric"
)

// CredentialsKeyEnv supplies the key for encrypt-credential when --key is not given
const CredentialsKeyEnv = "HEALTHCHAIN_CREDENTIALS_KEY"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var encryptCredentialCmd = &cobra.Command{
	Use:   "encrypt-credential <value>",
	Short: "Encrypt a KMS credential for sealer.credentials",
	Long: `Prints an ENC[...] envelope of the value. Store it under sealer.credentials
and set sealer.credentialsKeyBase64 to the same key so the ledger can decrypt it
at startup. With --generate-key a new random key is printed instead.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: runEncryptCredential,
}

func init() {
	configCmd.Flags().Bool("validate", true, "fail when the configuration is invalid")

	encryptCredentialCmd.Flags().String("key", "", "base64 credentials key (defaults to $"+CredentialsKeyEnv+")")
	encryptCredentialCmd.Flags().Bool("generate-key", false, "print a new random base64 credentials key")

	rootCmd.AddCommand(configCmd, encryptCredentialCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	validate, _ := cmd.Flags().GetBool("validate")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if validate {
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	masked := *cfg
	masked.Sealer = credentials.Mask(cfg.Sealer)
	if masked.Store.Mongo.URI != "" {
		masked.Store.Mongo.URI = credentials.MaskedValue
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func runEncryptCredential(cmd *cobra.Command, args []string) error {
	generate, _ := cmd.Flags().GetBool("generate-key")
	if generate {
		key := make([]byte, symmetric.KeySize)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generating key: %w", err)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("a value to encrypt is required")
	}

	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		key = os.Getenv(CredentialsKeyEnv)
	}
	if key == "" {
		return fmt.Errorf("--key or $%s is required", CredentialsKeyEnv)
	}

	encryptor, err := symmetric.NewEncryptionFromBase64(key)
	if err != nil {
		return err
	}
	sealed, err := encryptor.Encrypt(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), sealed)
	return err
}
