package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"delegate/internal/engine"
	"delegate/internal/usagelog"
)

func newUsageCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show per-session token and cost totals from the usage ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				totals, err := eng.UsageTotals(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, totals)
				}
				renderUsageTotals(cmd, totals)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Limit totals to one session id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit totals as JSON")

	return cmd
}

func renderUsageTotals(cmd *cobra.Command, totals []usagelog.SessionTotals) {
	out := cmd.OutOrStdout()
	if len(totals) == 0 {
		fmt.Fprintln(out, "No usage recorded")
		return
	}

	rows := make([][]string, 0, len(totals))
	for _, row := range totals {
		rows = append(rows, []string{
			row.SessionID,
			row.Model,
			strconv.FormatInt(row.Turns, 10),
			strconv.FormatInt(row.InputTokens, 10),
			strconv.FormatInt(row.OutputTokens, 10),
			fmt.Sprintf("$%.4f", row.Cost),
		})
	}

	if isTerminal(out) {
		fmt.Fprintln(out, renderTable(
			[]string{"Session", "Model", "Turns", "Input", "Output", "Cost"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
		return
	}
	for _, row := range rows {
		fmt.Fprintln(out, strings.Join(row, "\t"))
	}
}
