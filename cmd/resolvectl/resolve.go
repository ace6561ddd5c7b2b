package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"torrentstream/resolver/internal/domain"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] <url>",
	Short: "Turn a candidate link into a playable URL",
	Long: `Turn a candidate link into a playable URL.

The link may be a direct download, a hoster link, a magnet or an index
resolve link. Magnets can take minutes; --watch prints progress while the
torrent downloads.

Examples:
  resolvectl resolve "magnet:?xt=urn:btih:..." --watch
  resolvectl resolve https://hoster.example/file --media matrix`,
	Args: cobra.ExactArgs(1),
	RunE: runResolveCmd,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("media", "", "Media ID the resolution belongs to")
	resolveCmd.Flags().String("title", "", "Candidate title, kept in the history")
	resolveCmd.Flags().BoolP("watch", "w", false, "Stream progress events")
}

func runResolveCmd(cmd *cobra.Command, args []string) error {
	mediaID, _ := cmd.Flags().GetString("media")
	title, _ := cmd.Flags().GetString("title")
	watch, _ := cmd.Flags().GetBool("watch")

	req := ResolveRequest{URL: strings.TrimSpace(args[0]), MediaID: mediaID, Title: title}
	client := NewClient(serverURL)
	out := cmd.OutOrStdout()

	var (
		result *ResolveResponse
		err    error
	)
	if watch {
		result, err = client.ResolveWatch(cmd.Context(), req, func(event SSEEvent) {
			if event.Name != "progress" || jsonOutput {
				return
			}
			printProgress(out, event.Data)
		})
	} else {
		result, err = client.Resolve(cmd.Context(), req)
	}
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	if jsonOutput {
		return printJSON(out, result)
	}
	return printResolution(out, result)
}

func printProgress(out io.Writer, data []byte) {
	var event domain.ResolutionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}
	if event.Phase == domain.PhaseWaiting {
		fmt.Fprintf(out, "  %-22s %3d%%  %s\n", event.Phase, event.Percent, event.Status)
		return
	}
	fmt.Fprintf(out, "  %s\n", event.Phase)
}

func printResolution(out io.Writer, result *ResolveResponse) error {
	if result.Status != "done" {
		fmt.Fprintf(out, "Resolution failed (%s): %s\n", result.Kind, orDash(result.Message))
		return fmt.Errorf("resolution %s failed: %s", result.RequestID, result.Kind)
	}
	fmt.Fprintf(out, "Source:   %s\n", result.Source)
	if result.Fallback {
		fmt.Fprintln(out, "Fallback: hoster unsupported, used the torrent instead")
	}
	fmt.Fprintf(out, "Elapsed:  %dms\n", result.ElapsedMS)
	if !result.Applied {
		fmt.Fprintln(out, "Note:     a newer resolution for this media replaced this one")
	}
	fmt.Fprintf(out, "URL:      %s\n", result.DownloadURL)
	return nil
}
