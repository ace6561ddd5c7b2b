package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Inspect the resolver state of a media",
}

var mediaShowCmd = &cobra.Command{
	Use:   "show <mediaId>",
	Short: "Show candidates and the current resolution of a media",
	Args:  cobra.ExactArgs(1),
	RunE:  runMediaShowCmd,
}

var mediaForgetCmd = &cobra.Command{
	Use:   "forget <mediaId>",
	Short: "Drop a media and cancel its resolution",
	Args:  cobra.ExactArgs(1),
	RunE:  runMediaForgetCmd,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent resolution attempts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryCmd,
}

func init() {
	rootCmd.AddCommand(mediaCmd, historyCmd)
	mediaCmd.AddCommand(mediaShowCmd, mediaForgetCmd)

	historyCmd.Flags().String("media", "", "Only attempts of this media")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of attempts")
}

func runMediaShowCmd(cmd *cobra.Command, args []string) error {
	entry, err := NewClient(serverURL).Media(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("media lookup failed: %w", err)
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, entry)
	}
	fmt.Fprintf(out, "Media:      %s\n", entry.MediaID)
	fmt.Fprintf(out, "Candidates: %d\n", len(entry.Candidates))
	if entry.Selected != nil {
		fmt.Fprintf(out, "Selected:   %s\n", truncateText(orDash(entry.Selected.Title), 60))
	}
	switch {
	case entry.InFlight:
		fmt.Fprintf(out, "State:      resolving (%s)\n", entry.InFlightID)
	case entry.Resolved != nil:
		fmt.Fprintf(out, "State:      resolved %s\n", formatTimeAgo(entry.Resolved.ResolvedAt))
		fmt.Fprintf(out, "URL:        %s\n", entry.Resolved.URL)
	default:
		fmt.Fprintln(out, "State:      idle")
	}
	if entry.LastError != nil {
		fmt.Fprintf(out, "Last error: %s %s\n", entry.LastError.Kind, entry.LastError.Message)
	}
	return nil
}

func runMediaForgetCmd(cmd *cobra.Command, args []string) error {
	if err := NewClient(serverURL).ForgetMedia(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("media forget failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
	return nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	mediaID, _ := cmd.Flags().GetString("media")
	limit, _ := cmd.Flags().GetInt("limit")

	attempts, err := NewClient(serverURL).History(cmd.Context(), mediaID, limit)
	if err != nil {
		return fmt.Errorf("history lookup failed: %w", err)
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, attempts)
	}
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No attempts")
		return nil
	}
	fmt.Fprintf(out, "  %-10s %-18s %-8s %-18s %s\n", "WHEN", "SOURCE", "STATUS", "KIND", "TITLE")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))
	for _, attempt := range attempts {
		fmt.Fprintf(out, "  %-10s %-18s %-8s %-18s %s\n",
			formatTimeAgo(attempt.FinishedAt), attempt.Source, attempt.Status, orDash(string(attempt.Kind)), truncateText(orDash(attempt.Title), 30))
	}
	return nil
}
