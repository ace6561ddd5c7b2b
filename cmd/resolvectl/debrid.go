package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the debrid account status",
	Args:  cobra.NoArgs,
	RunE:  runAccountCmd,
}

var torrentsCmd = &cobra.Command{
	Use:   "torrents",
	Short: "List torrents on the debrid account",
	Args:  cobra.NoArgs,
	RunE:  runTorrentsCmd,
}

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "List unrestricted downloads on the debrid account",
	Args:  cobra.NoArgs,
	RunE:  runDownloadsCmd,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(torrentsCmd)
	rootCmd.AddCommand(downloadsCmd)
}

func runAccountCmd(cmd *cobra.Command, _ []string) error {
	account, err := NewClient(serverURL).Account(cmd.Context())
	if err != nil {
		return fmt.Errorf("account lookup failed: %w", err)
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, account)
	}
	plan := "free"
	if account.IsPremium {
		plan = "premium"
	}
	fmt.Fprintf(out, "User:    %s\n", orDash(account.Username))
	fmt.Fprintf(out, "Plan:    %s\n", plan)
	if !account.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "Expires: %s\n", account.ExpiresAt.Format("2006-01-02"))
	}
	if account.Points > 0 {
		fmt.Fprintf(out, "Points:  %d\n", account.Points)
	}
	return nil
}

func runTorrentsCmd(cmd *cobra.Command, _ []string) error {
	torrents, err := NewClient(serverURL).Torrents(cmd.Context())
	if err != nil {
		return fmt.Errorf("torrent list failed: %w", err)
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, torrents)
	}
	if len(torrents) == 0 {
		fmt.Fprintln(out, "No torrents")
		return nil
	}
	fmt.Fprintf(out, "Torrents (%d):\n\n", len(torrents))
	fmt.Fprintf(out, "  %-14s %-24s %-5s %s\n", "ID", "STATUS", "PCT", "NAME")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))
	for _, torrent := range torrents {
		fmt.Fprintf(out, "  %-14s %-24s %3d%%  %s\n",
			torrent.ID, torrent.Status, torrent.Progress, truncateText(orDash(torrent.Filename), 40))
	}
	return nil
}

func runDownloadsCmd(cmd *cobra.Command, _ []string) error {
	downloads, err := NewClient(serverURL).Downloads(cmd.Context())
	if err != nil {
		return fmt.Errorf("download list failed: %w", err)
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, downloads)
	}
	if len(downloads) == 0 {
		fmt.Fprintln(out, "No downloads")
		return nil
	}
	fmt.Fprintf(out, "Downloads (%d):\n\n", len(downloads))
	fmt.Fprintf(out, "  %-14s %-12s %s\n", "ID", "GENERATED", "FILE")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))
	for _, download := range downloads {
		fmt.Fprintf(out, "  %-14s %-12s %s\n",
			download.ID, formatTimeAgo(download.Generated), truncateText(download.Filename, 44))
	}
	return nil
}
