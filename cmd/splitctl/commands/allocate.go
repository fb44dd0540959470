package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/splitit/internal/calculator"
	"github.com/mmynk/splitit/internal/models"
)

// allocate -f bill.yaml: print each member's share of a bill.
func allocateCmd() *cobra.Command {
	var (
		billPath string
		tip      string
		payer    string
	)
	cmd := &cobra.Command{
		Use:   "allocate -f bill.yaml",
		Short: "Split a bill described in a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tipPercent, err := decimal.NewFromString(tip)
			if err != nil {
				return fmt.Errorf("invalid --tip %q", tip)
			}

			f, err := os.Open(billPath)
			if err != nil {
				return err
			}
			defer f.Close()
			bf, err := ReadBillFile(f)
			if err != nil {
				return err
			}

			c, err := bf.Run(cmd.Context(), tipPercent)
			if err != nil {
				return err
			}
			summaries, totals, err := c.Summary()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSummary(out, summaries, totals)

			if payer == "" {
				return nil
			}
			payerID, ok := MemberID(c, payer)
			if !ok {
				return fmt.Errorf("--payer %q is not a member", payer)
			}
			transfers, err := calculator.SettlementPlan(summaries, payerID)
			if err != nil {
				return err
			}
			printTransfers(out, summaries, transfers)
			return nil
		},
	}
	cmd.Flags().StringVarP(&billPath, "file", "f", "", "bill file (YAML)")
	cmd.Flags().StringVar(&tip, "tip", "18", "tip percent")
	cmd.Flags().StringVar(&payer, "payer", "", "member who paid the restaurant")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printSummary(w io.Writer, summaries []models.MemberSummary, totals models.BillTotals) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "MEMBER\tSUBTOTAL\tTAX\tTIP\tTOTAL\t")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", s.MemberName,
			s.Subtotal.StringFixed(2), s.TaxShare.StringFixed(2), s.TipShare.StringFixed(2), s.Total.StringFixed(2))
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", "TOTAL",
		totals.Subtotal.StringFixed(2), totals.Tax.StringFixed(2), totals.Tip.StringFixed(2), totals.GrandTotal.StringFixed(2))
	tw.Flush()
}

func printTransfers(w io.Writer, summaries []models.MemberSummary, transfers []models.Transfer) {
	names := make(map[string]string, len(summaries))
	for _, s := range summaries {
		names[s.MemberID] = s.MemberName
	}
	fmt.Fprintln(w)
	for _, t := range transfers {
		fmt.Fprintf(w, "%s pays %s %s\n", names[t.FromMemberID], names[t.ToMemberID], t.Amount.StringFixed(2))
	}
}
