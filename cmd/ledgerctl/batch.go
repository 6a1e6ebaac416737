package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmerrifield20/produce-escrow/pkg/client"
	"github.com/spf13/cobra"
)

// ── create ───────────────────────────────────────────────────────────────────

var createCmd = &cobra.Command{
	Use:   "create <metadata-cid> <price-wei>",
	Short: "Register a new batch owned by the caller",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		id, err := c.CreateBatch(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]uint64{"id": id})
		}
		fmt.Printf("created batch %d\n", id)
		return nil
	},
}

// ── lifecycle ────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list <batch-id> <price-wei>",
	Short: "List a batch for sale, or re-price a listed batch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(func(c *client.Client, ctx context.Context, id uint64) (*client.Batch, error) {
			return c.ListBatch(ctx, id, args[1])
		})(cmd, args)
	},
}

var qualityVerified bool

var qualityCmd = &cobra.Command{
	Use:   "quality <batch-id> <score>",
	Short: "Record a quality score (0-100)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var score int
		if _, err := fmt.Sscanf(args[1], "%d", &score); err != nil {
			return fmt.Errorf("invalid score %q", args[1])
		}
		return batchAction(func(c *client.Client, ctx context.Context, id uint64) (*client.Batch, error) {
			return c.UpdateQuality(ctx, id, score, qualityVerified)
		})(cmd, args)
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <batch-id> <metadata-cid>",
	Short: "Replace a batch's metadata CID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(func(c *client.Client, ctx context.Context, id uint64) (*client.Batch, error) {
			return c.UpdateMetadata(ctx, id, args[1])
		})(cmd, args)
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund <batch-id> <amount-wei>",
	Short: "Deposit escrow for a listed batch; the amount must equal the price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(func(c *client.Client, ctx context.Context, id uint64) (*client.Batch, error) {
			return c.FundEscrow(ctx, id, args[1])
		})(cmd, args)
	},
}

var deliverCmd = &cobra.Command{
	Use:   "deliver <batch-id>",
	Short: "Mark a funded batch as delivered (farmer)",
	Args:  cobra.ExactArgs(1),
	RunE:  batchAction((*client.Client).MarkDelivered),
}

var releaseCmd = &cobra.Command{
	Use:   "release <batch-id>",
	Short: "Release escrow to the farmer (buyer)",
	Args:  cobra.ExactArgs(1),
	RunE:  batchAction((*client.Client).Release),
}

var refundCmd = &cobra.Command{
	Use:   "refund <batch-id>",
	Short: "Refund escrow to the buyer before delivery",
	Args:  cobra.ExactArgs(1),
	RunE:  batchAction((*client.Client).Refund),
}

var getCmd = &cobra.Command{
	Use:   "get <batch-id>",
	Short: "Show a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  batchAction((*client.Client).GetBatch),
}

// ── provenance ───────────────────────────────────────────────────────────────

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Append to or read a batch's provenance trail",
}

var provenanceAddCmd = &cobra.Command{
	Use:   "add <batch-id> <cid>",
	Short: "Append a provenance note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(func(c *client.Client, ctx context.Context, id uint64) (*client.Batch, error) {
			return c.AddProvenance(ctx, id, args[1])
		})(cmd, args)
	},
}

var provenanceListCmd = &cobra.Command{
	Use:   "list <batch-id>",
	Short: "List provenance notes in append order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.GetProvenance(cmd.Context(), id)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(entries)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tCID\tAUTHOR\tADDED")
		for i, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, e.CID, e.Author, e.AddedAt.Format("2006-01-02 15:04:05Z07:00"))
		}
		return w.Flush()
	},
}

// ── incentive ────────────────────────────────────────────────────────────────

var incentiveCmd = &cobra.Command{
	Use:   "incentive <principal>",
	Short: "Show a principal's incentive points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		points, err := c.IncentiveBalance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"principal": args[0], "points": points})
		}
		fmt.Printf("%s: %d points\n", args[0], points)
		return nil
	},
}

func init() {
	qualityCmd.Flags().BoolVar(&qualityVerified, "verified", false, "mark the batch's data as verified")

	provenanceCmd.AddCommand(provenanceAddCmd, provenanceListCmd)

	rootCmd.AddCommand(
		createCmd, listCmd, qualityCmd, metadataCmd, fundCmd,
		deliverCmd, releaseCmd, refundCmd, getCmd,
		provenanceCmd, incentiveCmd,
	)
}
