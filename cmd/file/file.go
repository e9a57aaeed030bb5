// Package file implements the single image scanning command.
package file

import (
	"github.com/spf13/cobra"

	"github.com/teascan/teascan-go/internal/analysis"
	"github.com/teascan/teascan-go/internal/conf"
)

// Command creates a new file command for scanning a single image.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "file [input.jpg]",
		Short: "Scan a single image file",
		Long:  "Run disease detection on one JPEG image and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileScan(settings, args[0])
		},
	}
}
