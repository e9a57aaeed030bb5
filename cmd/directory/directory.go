// Package directory implements the batch image scanning command.
package directory

import (
	"github.com/spf13/cobra"

	"github.com/teascan/teascan-go/internal/analysis"
	"github.com/teascan/teascan-go/internal/conf"
)

// Command creates a new command for scanning a directory of images.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "directory [path]",
		Short: "Scan all images in a directory",
		Long:  "Run disease detection on every JPEG image in a directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.DirectoryScan(settings, args[0])
		},
	}
}
