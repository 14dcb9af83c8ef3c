package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"alistmirror/internal/storage"
	"alistmirror/pkg/utils"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Show what is stored at the destination",
	Long: `Count the files and bytes already present at the destination.

Works for local directories and s3://bucket/prefix destinations and is useful
to check progress of a mirror between runs.

Examples:
  alistmirror stat -d ./mirror
  alistmirror stat -d s3://backups/share -o yaml`,
	RunE: runStat,
}

func runStat(cmd *cobra.Command, args []string) error {
	destination := getDestination(cmd)

	store, err := storage.Open(cmd.Context(), destination, cfg.S3)
	if err != nil {
		err = fmt.Errorf("failed to open destination %s: %w", destination, err)
		utils.PrintError(err, "stat")
		return err
	}

	info, err := store.Stat(cmd.Context())
	if err != nil {
		err = fmt.Errorf("failed to stat destination %s: %w", store.Describe(), err)
		utils.PrintError(err, "stat")
		return err
	}

	if isVerbose(cmd) {
		fmt.Printf("Destination %s holds %d objects (%s)\n", info.Destination, info.ObjectCount, info.TotalSizeHuman)
		return nil
	}
	return utils.PrintOutput(info, getOutputFormat(cmd))
}
