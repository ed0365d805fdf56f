package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"dynamic-flea-price/internal/app"
)

var (
	simulateItem     string
	simulateQuantity float64
	simulateCurrency string
	simulatePersist  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Record a synthetic trade and show its effect on price",
	Long:  "Positive quantities are purchases, negative quantities are completed sales.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateItem == "" {
			return errors.New("--item is required")
		}
		if simulateQuantity == 0 {
			return errors.New("--qty must be non-zero")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			ItemID:   simulateItem,
			Quantity: simulateQuantity,
			Currency: simulateCurrency,
			Persist:  simulatePersist,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateItem, "item", "", "Item template id")
	simulateCmd.Flags().Float64Var(&simulateQuantity, "qty", 0, "Signed quantity (buy > 0, sell < 0)")
	simulateCmd.Flags().StringVar(&simulateCurrency, "currency", "", "Currency template id (defaults to roubles)")
	simulateCmd.Flags().BoolVar(&simulatePersist, "persist", false, "Save the resulting state")
}
