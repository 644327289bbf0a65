// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sberkun/ydl/internal/broker"
	"github.com/sberkun/ydl/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ydl broker",
	Long:  `Starts the TCP broker that clients connect to for publish/subscribe messaging.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		port, _ := cmd.Flags().GetInt("port")
		verbose, _ := cmd.Flags().GetBool("verbose")
		logFile, _ := cmd.Flags().GetString("log-file")

		logCfg := log.DefaultConfig()
		if verbose {
			logCfg.Level = "debug"
		}
		if logFile != "" {
			logCfg.Mode = "file"
			logCfg.FilePath = logFile
		}
		if err := log.Init(logCfg); err != nil {
			return fmt.Errorf("failed to init logging: %w", err)
		}

		addr := fmt.Sprintf("%s:%d", address, port)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Starting ydl broker on %s\n", addr)
		return broker.ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("address", "a", "127.0.0.1", "Address to bind to")
	serveCmd.Flags().IntP("port", "p", 5001, "Port to listen on")
	serveCmd.Flags().BoolP("verbose", "v", false, "Enable debug-level logging")
	serveCmd.Flags().String("log-file", "", "Write logs to this file instead of stdout (enables rotation)")
}
