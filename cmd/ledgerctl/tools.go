package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmerrifield20/produce-escrow/internal/identity"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret string
	tokenIssuer string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <principal>",
	Short: "Mint a caller token for a principal (development)",
	Long: `token signs a caller token with the ledger's shared secret. It is meant
for development and tests; production deployments issue tokens elsewhere.

The secret is read from --secret or LEDGERCTL_JWT_SECRET.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := model.ParsePrincipal(args[0])
		if err != nil {
			return err
		}
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("jwt_secret")
		}
		issuer, err := identity.NewTokenIssuer(secret, tokenIssuer, tokenTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(p)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

// ── content ──────────────────────────────────────────────────────────────────

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Store and fetch content-addressed documents",
}

var contentPutCmd = &cobra.Command{
	Use:   "put <file|->",
	Short: "Upload a file (or stdin) and print its CID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		cid, err := c.PutContent(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Println(cid)
		return nil
	},
}

var contentGetCmd = &cobra.Command{
	Use:   "get <cid>",
	Short: "Download a document to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		data, err := c.GetContent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the ledger's audit chain",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the ledger to verify its audit chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		overview, err := c.AuditOverview(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.VerifyAudit(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"entries": overview.Entries, "root": overview.Root, "valid": res.Valid, "error": res.Error})
		}
		fmt.Printf("entries: %d\nroot:    %s\n", overview.Entries, overview.Root)
		if !res.Valid {
			return fmt.Errorf("audit chain INVALID: %s", res.Error)
		}
		fmt.Println("audit chain OK")
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "shared JWT secret (at least 32 bytes)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "produce-escrow", "token issuer; must match the ledger's auth.issuer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	contentCmd.AddCommand(contentPutCmd, contentGetCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	rootCmd.AddCommand(tokenCmd, contentCmd, auditCmd)
}
