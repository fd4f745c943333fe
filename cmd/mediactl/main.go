package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "mediactl",
		Short:   "mediactl - command line client of the media/OCR API",
		Long:    "Uploads videos for speaker separation and images for plate recognition through the HTTP API.",
		Version: version,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newAudioCmd())
	rootCmd.AddCommand(newPlateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
