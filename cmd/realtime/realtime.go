// Package realtime implements the realtime scanning command.
package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teascan/teascan-go/internal/analysis"
	"github.com/teascan/teascan-go/internal/conf"
)

// Command creates a new command for realtime camera scanning.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Scan a camera stream in realtime mode",
		Long:  "Start the scanning station: camera detection loop, HTTP API and integrations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeScan(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Realtime.Camera.Source, "source", viper.GetString("realtime.camera.source"), "Camera source type (\"mjpeg\" or \"file\")")
	cmd.Flags().StringVar(&settings.Realtime.Camera.MJPEG.URL, "stream", viper.GetString("realtime.camera.mjpeg.url"), "URL of the MJPEG camera stream")
	cmd.Flags().StringVar(&settings.Realtime.Camera.File.Path, "framepath", viper.GetString("realtime.camera.file.path"), "Directory of JPEG frames to replay")
	cmd.Flags().IntVar(&settings.Realtime.Scanner.Interval, "interval", viper.GetInt("realtime.scanner.interval"), "Minimum milliseconds between inference samples")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the HTTP API server")
	cmd.Flags().BoolVar(&settings.Realtime.Telemetry.Enabled, "telemetry", viper.GetBool("realtime.telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Realtime.Telemetry.Listen, "listen", viper.GetString("realtime.telemetry.listen"), "Listen address and port of telemetry endpoint")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
