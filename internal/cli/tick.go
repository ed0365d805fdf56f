package cli

import (
	"github.com/spf13/cobra"

	"dynamic-flea-price/internal/app"
)

var tickCatchUp bool

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Apply one decay pass to the persisted multipliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Tick(cmd.Context(), app.TickOptions{CatchUp: tickCatchUp})
	},
}

func init() {
	tickCmd.Flags().BoolVar(&tickCatchUp, "catch-up", false, "Replay every pass missed since the last decay instead of one")
}
