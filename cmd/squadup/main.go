package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "squadup",
	Short: "Group messaging server and terminal client",
	Long: `squadup runs the group messaging backend (HTTP, websocket and gRPC)
and ships a terminal client that joins a group's live conversation.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, chatCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
