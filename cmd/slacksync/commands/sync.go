package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldline/slacksync/internal/connector"
	"github.com/fieldline/slacksync/internal/store"
	"github.com/fieldline/slacksync/internal/utils"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull channel content into the local store",
	Long: `Sync runs one incremental pull over the source's configured channels.

Messages and threads are normalized into content items and upserted into
the local database. Each channel's watermark is persisted so the next run
resumes where this one stopped.

Examples:
  # Sync the last week of the acme workspace
  slacksync sync --source acme --since 7d

  # Resume from the stored watermark, up to 500 items
  slacksync sync --source acme --limit 500

  # Ignore the stored watermark and start over
  slacksync sync --source acme --full`,
	RunE: runSync,
}

var (
	syncSource   string
	syncSince    string
	syncUntil    string
	syncLimit    int
	syncPageSize int
	syncFull     bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncSource, "source", "", "Configured source name (required)")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "Start date (YYYY-MM-DD or relative like 7d)")
	syncCmd.Flags().StringVar(&syncUntil, "until", "", "End date (YYYY-MM-DD or relative like 1d)")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 1000, "Maximum number of items to sync")
	syncCmd.Flags().IntVar(&syncPageSize, "page-size", 100, "Messages fetched per channel page")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Ignore the stored watermark and sync from the beginning")
	syncCmd.MarkFlagRequired("source")
}

// syncSummary is the machine-readable result printed after a pass.
type syncSummary struct {
	Source     string `json:"source"`
	Items      int    `json:"items"`
	Pages      int    `json:"pages"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	source, err := loadSource(syncSource)
	if err != nil {
		return err
	}
	if len(source.Config.Channels) == 0 {
		return fmt.Errorf("source %q has no channels configured", syncSource)
	}

	opts := connector.SyncOptions{Limit: syncPageSize}
	if syncSince != "" {
		since, err := utils.ParseSinceDate(syncSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		opts.Since = &since
	}
	if syncUntil != "" {
		until, err := utils.ParseSinceDate(syncUntil)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
		opts.Until = &until
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	log, err := newRunLogger()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Sync()

	adapter := newAdapter(s, log)
	ctx := context.Background()

	// Resume from the stored watermark unless told otherwise.
	if !syncFull {
		state, err := s.GetChannelSyncState(ctx, source.ID, source.Config.Channels[0])
		if err != nil {
			return err
		}
		if state != nil {
			opts.Cursor = state.LastCursor
		}
	}

	log.Info("starting sync pass",
		zap.String("source", source.Name),
		zap.Strings("channels", source.Config.Channels))

	summary := syncSummary{Source: source.Name}
	var lastItemID string
	for {
		allowed, err := s.CheckRateLimit(ctx, source.ID, "conversations.history")
		if err != nil {
			return err
		}
		if !allowed {
			fmt.Fprintf(cmd.OutOrStderr(), "Rate limit window exhausted, stopping. Re-run to resume.\n")
			summary.HasMore = true
			summary.NextCursor = opts.Cursor
			break
		}

		result, err := adapter.FetchContent(ctx, source, opts)
		if err != nil {
			return err
		}
		if err := s.RecordRequest(ctx, source.ID, "conversations.history"); err != nil {
			return err
		}
		summary.Pages++

		for _, item := range result.Items {
			if err := s.SaveItem(ctx, source.ID, item); err != nil {
				return err
			}
			summary.Items++
			lastItemID = item.ExternalID
		}
		fmt.Fprintf(cmd.OutOrStderr(), "Page %d: %d items\n", summary.Pages, len(result.Items))

		summary.HasMore = result.HasMore
		summary.NextCursor = result.NextCursor
		if !result.HasMore || result.NextCursor == "" || summary.Items >= syncLimit {
			break
		}
		opts.Cursor = result.NextCursor
	}

	cursor := resumeCursor(summary.NextCursor, source.Config.Channels[0], lastItemID)
	if err := saveWatermarks(ctx, s, channelDirectory(ctx, adapter, source), source, cursor); err != nil {
		return err
	}

	log.Info("sync pass finished",
		zap.Int("items", summary.Items),
		zap.Int("pages", summary.Pages),
		zap.Bool("has_more", summary.HasMore))

	return OutputJSON(summary)
}

// resumeCursor picks the watermark to persist after a pass: the in-flight
// pagination cursor when more pages remain, otherwise the last item this
// pass emitted. Empty when the pass emitted nothing and had no cursor.
func resumeCursor(nextCursor, channelID, lastItemID string) string {
	if nextCursor != "" {
		return nextCursor
	}
	if lastItemID != "" {
		return connector.EncodeCursor(channelID, lastItemID)
	}
	return ""
}

// channelDirectory best-effort maps channel ids to their name and type
// for watermark bookkeeping.
func channelDirectory(ctx context.Context, adapter *connector.Adapter, source connector.Source) map[string]connector.ChannelSyncState {
	names := map[string]connector.ChannelSyncState{}
	if channels, err := adapter.ListChannels(ctx, source); err == nil {
		for _, ch := range channels {
			chType := "public_channel"
			if ch.IsPrivate {
				chType = "private_channel"
			}
			names[ch.ID] = connector.ChannelSyncState{ChannelName: ch.Name, ChannelType: chType}
		}
	}
	return names
}

// saveWatermarks records the pass outcome for every configured channel.
// Only the first channel carries the resume cursor; the others just get
// their sync time refreshed. An empty cursor never clobbers a stored
// one: a caught-up pass that emitted nothing keeps the prior watermark.
func saveWatermarks(ctx context.Context, s *store.Store, names map[string]connector.ChannelSyncState, source connector.Source, cursor string) error {
	now := time.Now().UTC()
	for i, channelID := range source.Config.Channels {
		state := connector.ChannelSyncState{
			SourceID:     source.ID,
			ChannelID:    channelID,
			ChannelName:  names[channelID].ChannelName,
			ChannelType:  names[channelID].ChannelType,
			LastSyncedAt: now,
		}
		if i == 0 {
			state.LastCursor = cursor
			if cursor == "" {
				prev, err := s.GetChannelSyncState(ctx, source.ID, channelID)
				if err != nil {
					return err
				}
				if prev != nil {
					state.LastCursor = prev.LastCursor
				}
			}
		}
		if err := s.UpdateChannelSyncState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}
