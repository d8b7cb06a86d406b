// Command tabctl drives a running tabhost server from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagJSON   bool

	api *apiClient
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "tabctl",
	Short:         "tabctl controls the tabs of a tabhost server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		api = newClient(flagServer)
		return nil
	},
}

func init() {
	server := os.Getenv("TABHOST_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", server, "tabhost server URL (env TABHOST_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(navigateCmd)
	for _, c := range actionCmds {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
