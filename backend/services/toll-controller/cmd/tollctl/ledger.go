package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/service"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect a transaction ledger file",
	}
	cmd.PersistentFlags().String("file", "transaction_history.json", "ledger file")
	cmd.PersistentFlags().Bool("json", false, "print JSON")
	cmd.AddCommand(ledgerStatsCmd())
	cmd.AddCommand(ledgerRecentCmd())
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.Store, bool, error) {
	path, _ := cmd.Flags().GetString("file")
	asJSON, _ := cmd.Flags().GetBool("json")
	store, err := ledger.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}
	return store, asJSON, nil
}

func ledgerStatsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vehicle and revenue totals with per-day counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, asJSON, err := openLedger(cmd)
			if err != nil {
				return err
			}
			st := ledger.Summarize(store.Snapshot(), time.Now(), days)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total vehicles: %d\n", st.TotalVehicles)
			fmt.Fprintf(out, "Total revenue:  %s %d\n", service.Currency, st.TotalRevenue)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tVEHICLES")
			for _, d := range st.Daily {
				fmt.Fprintf(tw, "%s\t%d\n", d.Date, d.Vehicles)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days in the daily breakdown")
	return cmd
}

func ledgerRecentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, asJSON, err := openLedger(cmd)
			if err != nil {
				return err
			}
			recs := store.Recent(limit)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIMESTAMP\tCARD\tAMOUNT\tBALANCE")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.Timestamp.Format(ledger.TimestampLayout), r.CardID, r.Amount, r.Balance)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of transactions")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
