package cli

import (
	"github.com/spf13/cobra"

	"dynamic-flea-price/internal/app"
)

var (
	cheatsheetOut  string
	cheatsheetXLSX string
)

var cheatsheetCmd = &cobra.Command{
	Use:   "cheatsheet",
	Short: "List item and category ids with names for editing the weight maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheatSheet(cmd.Context(), app.CheatSheetOptions{
			TextPath: cheatsheetOut,
			XLSXPath: cheatsheetXLSX,
		})
	},
}

func init() {
	cheatsheetCmd.Flags().StringVar(&cheatsheetOut, "out", "-", "Path to write the text report (- for stdout)")
	cheatsheetCmd.Flags().StringVar(&cheatsheetXLSX, "xlsx", "", "Also write an Excel workbook to this path")
}
