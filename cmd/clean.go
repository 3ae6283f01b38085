package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tanq16/rangeflow/internal/config"
	"github.com/tanq16/rangeflow/internal/output"
	"github.com/tanq16/rangeflow/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [STORAGE_ROOT]",
		Short: "Remove leftover part files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			} else {
				cfg, err := loadConfig(config.Config{})
				if err != nil {
					return err
				}
				root = cfg.StorageRoot
			}
			if err := utils.CleanTemp(root); err != nil {
				output.PrintError("Error cleaning up temporary files")
				return err
			}
			output.PrintSuccess("Temporary files cleaned up in " + root)
			return nil
		},
	}
}
