package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tabs in layout order",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tabs, err := api.tabs(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), tabs)
		}
		printTabs(cmd.OutOrStdout(), tabs)
		return nil
	},
}

var (
	openBackground bool
	openShared     bool
	openFrom       string
)

var openCmd = &cobra.Command{
	Use:   "open [url]",
	Short: "Open a tab",
	Long: `Open a new tab at url, or at the home page when url is omitted.

Example:
  tabctl open https://example.com
  tabctl open --background --from 3f2a... docs.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.CreateTabRequest{
			FromTabID:  openFrom,
			IsShared:   openShared,
			Background: openBackground,
		}
		if len(args) == 1 {
			req.URL = args[0]
		}
		tab, err := api.open(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printTab(cmd.OutOrStdout(), tab)
	},
}

func init() {
	openCmd.Flags().BoolVar(&openBackground, "background", false, "do not activate the new tab")
	openCmd.Flags().BoolVar(&openShared, "shared", false, "use the shared storage partition")
	openCmd.Flags().StringVar(&openFrom, "from", "", "place after and inherit from this tab")
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.close(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
		return nil
	},
}

var navigateCmd = &cobra.Command{
	Use:   "navigate <id> <url-or-query>",
	Short: "Load a URL or search query in a tab",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, err := api.navigate(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printTab(cmd.OutOrStdout(), tab)
	},
}

// actionCmds are the body-less tab commands
var actionCmds = []*cobra.Command{
	tabAction("activate", "activate", "Make a tab the visible one"),
	tabAction("hibernate", "hibernate", "Release a background tab's surface"),
	tabAction("wake", "wake", "Give a hibernated tab a surface again"),
	tabAction("share", "shared", "Toggle a tab between its own and the shared storage"),
	tabAction("clear", "clear", "Clear a tab's storage and reload it"),
	tabAction("back", "back", "Go back in a tab's history"),
	tabAction("forward", "forward", "Go forward in a tab's history"),
	tabAction("reload", "reload", "Reload a tab"),
}

func tabAction(use, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tab, err := api.tabAction(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			return printTab(cmd.OutOrStdout(), tab)
		},
	}
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Show the tab and group arrangement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, err := api.layout(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), layout)
		}
		groups := make(map[string]models.Group, len(layout.Groups))
		for _, g := range layout.Groups {
			groups[g.ID] = g
		}
		out := cmd.OutOrStdout()
		for _, id := range layout.Items {
			g, ok := groups[id]
			if !ok {
				fmt.Fprintln(out, marker(id, layout.ActiveTabID)+id)
				continue
			}
			state := ""
			if g.Collapsed {
				state = " (collapsed)"
			}
			fmt.Fprintf(out, "  [%s] %s%s\n", g.Name, g.ID, state)
			for _, t := range g.Tabs {
				fmt.Fprintln(out, "    "+marker(t, layout.ActiveTabID)+t)
			}
		}
		return nil
	},
}

func marker(id, active string) string {
	if id == active {
		return "* "
	}
	return "  "
}

func printTab(w io.Writer, tab models.TabView) error {
	if flagJSON {
		return printJSON(w, tab)
	}
	printTabs(w, []models.TabView{tab})
	return nil
}

func printTabs(w io.Writer, tabs []models.TabView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tSTATE\tURL\tTITLE")
	for _, t := range tabs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker(t.ID, activeID(t)), t.ID, tabState(t), t.URL, t.Title)
	}
	tw.Flush()
}

func activeID(t models.TabView) string {
	if t.IsActive {
		return t.ID
	}
	return ""
}

func tabState(t models.TabView) string {
	switch {
	case t.IsHibernated:
		return "hibernated"
	case t.LoadError != "":
		return "error"
	case t.IsLoading:
		return "loading"
	case t.IsShared:
		return "shared"
	default:
		return "ready"
	}
}
