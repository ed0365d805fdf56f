package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"dynamic-flea-price/internal/app"
)

var (
	backupOut string
	restoreIn string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write the persisted multipliers to a compressed snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backup(cmd.Context(), app.BackupOptions{Path: backupOut})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the persisted multipliers with a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Restore(cmd.Context(), app.RestoreOptions{Path: restoreIn})
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupOut, "out", "", "Snapshot path (.json.zst)")
	_ = backupCmd.MarkFlagRequired("out")
	restoreCmd.Flags().StringVar(&restoreIn, "in", "", "Snapshot path to restore")
	_ = restoreCmd.MarkFlagRequired("in")
}

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard all item and category multipliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirmed {
			return errors.New("refusing to reset without --yes; take a backup first")
		}
		return getApp().Reset(cmd.Context())
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm the reset")
}
