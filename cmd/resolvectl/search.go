package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [flags] <imdbId>",
	Short: "Search the stream index for candidates",
	Long: `Search the stream index for candidates.

Examples:
  resolvectl search tt0133093
  resolvectl search tt0903747 --type series --season 1 --episode 2
  resolvectl search tt0133093 --media matrix --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearchCmd,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().String("type", "movie", "Media type (movie or series)")
	searchCmd.Flags().Int("season", 0, "Season number (series only)")
	searchCmd.Flags().Int("episode", 0, "Episode number (series only)")
	searchCmd.Flags().String("media", "", "Media ID to store the candidates under")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	mediaType, _ := cmd.Flags().GetString("type")
	mediaID, _ := cmd.Flags().GetString("media")

	req := SearchRequest{
		ImdbID:  strings.TrimSpace(args[0]),
		Type:    strings.ToLower(strings.TrimSpace(mediaType)),
		MediaID: mediaID,
	}
	if cmd.Flags().Changed("season") {
		season, _ := cmd.Flags().GetInt("season")
		req.Season = &season
	}
	if cmd.Flags().Changed("episode") {
		episode, _ := cmd.Flags().GetInt("episode")
		req.Episode = &episode
	}

	client := NewClient(serverURL)
	results, err := client.Search(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, results)
	}
	if results.Error != "" {
		fmt.Fprintf(out, "Stream index unavailable: %s\n", orDash(results.Message))
		if results.Retryable {
			fmt.Fprintln(out, "Try again in a moment.")
		}
		return nil
	}
	if len(results.Streams) == 0 {
		fmt.Fprintln(out, "No streams found")
		return nil
	}

	fmt.Fprintf(out, "Streams (%d):\n\n", len(results.Streams))
	fmt.Fprintf(out, "  %-3s %-8s %-10s %s\n", "#", "QUALITY", "SIZE", "TITLE")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for i, stream := range results.Streams {
		title := truncateText(stream.Title, 50)
		if stream.IsDirectLink {
			title += " [direct]"
		}
		fmt.Fprintf(out, "  %-3d %-8s %-10s %s\n", i+1, orDash(stream.QualityLabel), orDash(stream.SizeLabel), title)
	}
	return nil
}
