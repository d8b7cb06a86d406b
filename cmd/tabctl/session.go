package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

var (
	settingsSearch   string
	settingsHome     string
	settingsIdentity string
	settingsProxy    string
	settingsRules    string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change settings",
	Long: `Without flags, settings prints the current settings. Any flag given is
sent as a change.

Example:
  tabctl settings --search 'https://duckduckgo.com/?q=%s'
  tabctl settings --proxy fixed --proxy-rules socks5://127.0.0.1:1080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch models.SettingsPatch
		changed := false
		if cmd.Flags().Changed("search") {
			patch.SearchEngine = &settingsSearch
			changed = true
		}
		if cmd.Flags().Changed("home") {
			patch.HomePage = &settingsHome
			changed = true
		}
		if cmd.Flags().Changed("identity") {
			patch.Identity = &models.IdentitySettings{Profile: settingsIdentity}
			changed = true
		}
		if cmd.Flags().Changed("proxy") {
			patch.Proxy = &models.ProxySettings{Mode: settingsProxy, Rules: settingsRules}
			changed = true
		}

		var (
			s   models.Settings
			err error
		)
		if changed {
			s, err = api.updateSettings(cmd.Context(), patch)
		} else {
			s, err = api.settings(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

func init() {
	settingsCmd.Flags().StringVar(&settingsSearch, "search", "", "search URL template, %s is the query")
	settingsCmd.Flags().StringVar(&settingsHome, "home", "", "page new tabs open")
	settingsCmd.Flags().StringVar(&settingsIdentity, "identity", "", "browser identity profile")
	settingsCmd.Flags().StringVar(&settingsProxy, "proxy", "", "proxy mode: direct, fixed, pac or system")
	settingsCmd.Flags().StringVar(&settingsRules, "proxy-rules", "", "proxy server or PAC URL")
}

var backupOutput string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Download a session backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := api.backup(cmd.Context())
		if err != nil {
			return err
		}
		if backupOutput == "" || backupOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(backupOutput, data, 0o600); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", backupOutput)
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "file to write (default stdout)")
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Install a session backup; it takes effect when the server restarts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read backup: %w", err)
		}
		res, err := api.restore(cmd.Context(), data)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %d tabs; restart the server to load them\n", res.Tabs)
		return nil
	},
}
