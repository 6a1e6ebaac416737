package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jmerrifield20/produce-escrow/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	ledgerURL    string
	token        string
	cfgFile      string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Produce escrow ledger CLI",
	Long: `ledgerctl drives the produce escrow ledger over its HTTP API.

Farmers create, list and deliver batches; buyers fund, release and refund
escrow. Mutating commands need a caller token (see 'ledgerctl token').`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("ledgerctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "caller bearer token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ledgerctl", version)
	},
}

// newClient builds an SDK client from the resolved flags and config.
func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(ledgerURL, opts...)
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid batch id %q", arg)
	}
	return id, nil
}

// batchAction runs fn against the batch named by args[0] and prints the
// updated batch. fn has the shape of a *client.Client method expression.
func batchAction(fn func(c *client.Client, ctx context.Context, id uint64) (*client.Batch, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		b, err := fn(c, cmd.Context(), id)
		if err != nil {
			return err
		}
		return printBatch(b)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBatch(b *client.Batch) error {
	if outputFormat == "json" {
		return printJSON(b)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%d\n", b.ID)
	fmt.Fprintf(w, "STATE\t%s\n", b.State)
	fmt.Fprintf(w, "FARMER\t%s\n", b.Farmer)
	buyer := b.Buyer
	if buyer == "" {
		buyer = "-"
	}
	fmt.Fprintf(w, "BUYER\t%s\n", buyer)
	fmt.Fprintf(w, "PRICE (wei)\t%s\n", b.PriceWei)
	fmt.Fprintf(w, "ESCROW (wei)\t%s\n", b.EscrowAmountWei)
	fmt.Fprintf(w, "QUALITY\t%d (verified=%t)\n", b.QualityScore, b.DataVerified)
	fmt.Fprintf(w, "METADATA\t%s\n", b.MetadataCID)
	fmt.Fprintf(w, "PROVENANCE\t%d entries\n", len(b.Provenance))
	return w.Flush()
}
