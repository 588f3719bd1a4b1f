package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"delegate/internal/engine"
	"delegate/internal/session"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				sessions, err := eng.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sessions)
				}
				renderSessionList(cmd, sessions)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit raw session records as JSON")

	return cmd
}

func renderSessionList(cmd *cobra.Command, sessions []*session.Info) {
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions")
		return
	}

	rows := make([][]string, 0, len(sessions))
	for _, info := range sessions {
		rows = append(rows, []string{
			info.ID,
			info.Model,
			string(info.Status),
			info.CreatedAt.Local().Format(time.RFC3339),
		})
	}

	if isTerminal(out) {
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Model", "Status", "Created"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		))
		return
	}
	for _, row := range rows {
		fmt.Fprintln(out, strings.Join(row, "\t"))
	}
}
