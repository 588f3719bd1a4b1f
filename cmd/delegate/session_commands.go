package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"delegate/internal/engine"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var model string
	var thinking string
	var tools string
	var name string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				info, err := eng.Start(cmd.Context(), engine.StartRequest{
					Model:    model,
					Thinking: thinking,
					Tools:    tools,
					Name:     name,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), info.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model as provider:model (required)")
	cmd.Flags().StringVarP(&thinking, "thinking", "t", "", "Thinking level (off|minimal|low|medium|high)")
	cmd.Flags().StringVar(&tools, "tools", "", "Comma-separated tool allowlist")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Session name (generated when omitted)")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func newSendCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var timeoutMS int

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Run one turn against an existing session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return ctx.withEngine(func(eng *engine.Engine) error {
				timeout := time.Duration(timeoutMS) * time.Millisecond
				result, err := eng.Send(cmd.Context(), sessionID, message, timeout)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Response)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (required)")
	cmd.Flags().IntVar(&timeoutMS, "timeout", 0, "Inactivity timeout in milliseconds (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func newEndCommand(ctx *commandContext) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "end",
		Short: "Close a session, keeping its transcript for later resumption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.End(cmd.Context(), sessionID)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (required)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete a session's metadata and transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.Purge(cmd.Context(), sessionID)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (required)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
