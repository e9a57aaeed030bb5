package main

import (
	"fmt"
	"os"

	"github.com/teascan/teascan-go/cmd"
	"github.com/teascan/teascan-go/internal/conf"
)

func main() {
	// Load the configuration, viper applies defaults for missing values.
	settings, err := conf.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
