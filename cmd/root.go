package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "ydl",
	Short:   "ydl - a small TCP publish/subscribe broker",
	Long:    `ydl runs a message broker that lets connected clients declare channel subscriptions and publish messages for fan-out to every subscriber of the channel, including the publisher if it subscribes.`,
	Version: Version,
}

func init() {
	// Set a version template that prints the version only
	rootCmd.SetVersionTemplate("ydl version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
