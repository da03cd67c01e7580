package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show per-channel sync watermarks",
	Long: `State prints each configured channel's stored watermark: the resume
cursor and when the channel last completed a pass.

Example:
  slacksync state --source acme`,
	RunE: runState,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local store statistics",
	RunE:  runStats,
}

var stateSource string

func init() {
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(statsCmd)

	stateCmd.Flags().StringVar(&stateSource, "source", "", "Configured source name (required)")
	stateCmd.MarkFlagRequired("source")
}

func runState(cmd *cobra.Command, args []string) error {
	source, err := loadSource(stateSource)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	states, err := s.ListChannelSyncStates(context.Background(), source.ID)
	if err != nil {
		return err
	}
	return OutputJSON(states)
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return err
	}

	return OutputJSON(map[string]any{
		"items":          stats.ItemCount,
		"threads":        stats.ThreadCount,
		"users":          stats.UserCount,
		"channels":       stats.ChannelCount,
		"last_synced_at": stats.LastSyncedAt,
		"database_bytes": stats.DatabaseSize,
	})
}
