package main

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"torrentstream/resolver/internal/domain"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Search or resolve a run of episodes",
}

var batchStartCmd = &cobra.Command{
	Use:   "start [flags] <imdbId>",
	Short: "Queue episodes for search and optional resolution",
	Long: `Queue episodes for search and optional resolution.

Episodes are processed one at a time in the order given.

Examples:
  resolvectl batch start tt0903747 --episodes S01E01,S01E02
  resolvectl batch start tt0903747 --season 2 --from 1 --to 13 --resolve --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchStartCmd,
}

var batchStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchStatusCmd,
}

var batchCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a batch; unprocessed episodes stay pending",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchCancelCmd,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchStartCmd, batchStatusCmd, batchCancelCmd)

	batchStartCmd.Flags().String("episodes", "", "Comma separated episodes (S01E02 or 1x2)")
	batchStartCmd.Flags().Int("season", 0, "Season for --from/--to")
	batchStartCmd.Flags().Int("from", 0, "First episode of the range")
	batchStartCmd.Flags().Int("to", 0, "Last episode of the range")
	batchStartCmd.Flags().String("media", "", "Media ID the resolutions belong to")
	batchStartCmd.Flags().Bool("resolve", false, "Resolve the top candidate of every episode")
	batchStartCmd.Flags().Bool("wait", false, "Poll until the batch finishes")
}

var episodePattern = regexp.MustCompile(`(?i)^s?(\d{1,3})[ex](\d{1,4})$`)

// parseEpisodes reads "S01E02,1x3" style lists.
func parseEpisodes(raw string) ([]domain.EpisodeRef, error) {
	var refs []domain.EpisodeRef
	for _, part := range strings.Split(raw, ",") {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		match := episodePattern.FindStringSubmatch(value)
		if match == nil {
			return nil, fmt.Errorf("invalid episode %q", value)
		}
		season, _ := strconv.Atoi(match[1])
		episode, _ := strconv.Atoi(match[2])
		refs = append(refs, domain.EpisodeRef{Season: season, Episode: episode})
	}
	return refs, nil
}

func episodeRange(season, from, to int) ([]domain.EpisodeRef, error) {
	if from <= 0 || to < from {
		return nil, fmt.Errorf("invalid episode range %d-%d", from, to)
	}
	refs := make([]domain.EpisodeRef, 0, to-from+1)
	for episode := from; episode <= to; episode++ {
		refs = append(refs, domain.EpisodeRef{Season: season, Episode: episode})
	}
	return refs, nil
}

func runBatchStartCmd(cmd *cobra.Command, args []string) error {
	rawEpisodes, _ := cmd.Flags().GetString("episodes")
	season, _ := cmd.Flags().GetInt("season")
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")
	mediaID, _ := cmd.Flags().GetString("media")
	resolve, _ := cmd.Flags().GetBool("resolve")
	wait, _ := cmd.Flags().GetBool("wait")

	episodes, err := parseEpisodes(rawEpisodes)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
		ranged, err := episodeRange(season, from, to)
		if err != nil {
			return err
		}
		episodes = append(episodes, ranged...)
	}
	if len(episodes) == 0 {
		return fmt.Errorf("no episodes given; use --episodes or --from/--to")
	}

	client := NewClient(serverURL)
	batch, err := client.StartBatch(cmd.Context(), domain.BatchSpec{
		ImdbID:   strings.TrimSpace(args[0]),
		MediaID:  mediaID,
		Episodes: episodes,
		Resolve:  resolve,
	})
	if err != nil {
		return fmt.Errorf("batch start failed: %w", err)
	}

	if wait {
		batch, err = waitForBatch(cmd, client, batch.ID, 2*time.Second)
		if err != nil {
			return err
		}
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), batch)
	}
	printBatch(cmd.OutOrStdout(), batch)
	return nil
}

func waitForBatch(cmd *cobra.Command, client *Client, id string, interval time.Duration) (*domain.Batch, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		batch, err := client.Batch(cmd.Context(), id)
		if err != nil {
			return nil, fmt.Errorf("batch status failed: %w", err)
		}
		if batch.State == domain.BatchStateCompleted || batch.State == domain.BatchStateCanceled {
			return batch, nil
		}
		select {
		case <-cmd.Context().Done():
			return batch, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func runBatchStatusCmd(cmd *cobra.Command, args []string) error {
	batch, err := NewClient(serverURL).Batch(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("batch status failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), batch)
	}
	printBatch(cmd.OutOrStdout(), batch)
	return nil
}

func runBatchCancelCmd(cmd *cobra.Command, args []string) error {
	batch, err := NewClient(serverURL).CancelBatch(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("batch cancel failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), batch)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Batch %s cancel requested\n", batch.ID)
	return nil
}

func printBatch(out io.Writer, batch *domain.Batch) {
	fmt.Fprintf(out, "Batch %s (%s) %s\n\n", batch.ID, batch.ImdbID, batch.State)
	fmt.Fprintf(out, "  %-8s %-10s %s\n", "EPISODE", "STATUS", "DETAIL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))
	for _, item := range batch.Items {
		detail := "-"
		switch {
		case item.Error != "":
			detail = item.Error
		case item.DownloadURL != "":
			detail = item.DownloadURL
		case item.Stream != nil:
			detail = truncateText(item.Stream.Title, 56)
		}
		fmt.Fprintf(out, "  S%02dE%02d   %-10s %s\n", item.Season, item.Episode, item.Status, detail)
	}
}
