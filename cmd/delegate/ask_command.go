package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"delegate/internal/engine"
)

func newAskCommand(ctx *commandContext) *cobra.Command {
	var model string
	var thinking string
	var tools string
	var timeoutMS int

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run a one-shot exchange in a throwaway session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return ctx.withEngine(func(eng *engine.Engine) error {
				timeout := time.Duration(timeoutMS) * time.Millisecond
				result, err := eng.Ask(cmd.Context(), engine.StartRequest{
					Model:    model,
					Thinking: thinking,
					Tools:    tools,
				}, message, timeout)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Response)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model as provider:model (required)")
	cmd.Flags().StringVarP(&thinking, "thinking", "t", "", "Thinking level (off|minimal|low|medium|high)")
	cmd.Flags().StringVar(&tools, "tools", "", "Comma-separated tool allowlist")
	cmd.Flags().IntVar(&timeoutMS, "timeout", 0, "Inactivity timeout in milliseconds (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}
