package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sensiblebit/devcert/internal"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List certificates recorded in the issuance ledger",
	Example: `  devcert --db ~/.devcert.db history
  devcert --db ~/.devcert.db history --limit 5 --format json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of entries to show (0 for all)")
	enumFlag(historyCmd.Flags(), &historyFormat, "format", internal.FormatText, "Output format", internal.FormatText, internal.FormatJSON)
	completeEnums(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		return errors.New("history needs a ledger; pass --db")
	}
	ledger, err := internal.OpenLedger(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	recs, err := ledger.List(ctx, historyLimit)
	if err != nil {
		return err
	}

	if historyFormat == internal.FormatJSON {
		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISSUED\tCOMMON NAME\tMODE\tNOT AFTER\tSERIAL\tOUTPUTS")
	for _, r := range recs {
		outputs := r.Outputs
		if outputs == "" {
			outputs = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.IssuedAt, r.CommonName, r.Mode, r.NotAfter, r.Serial, strings.ReplaceAll(outputs, ",", " "))
	}
	return tw.Flush()
}
