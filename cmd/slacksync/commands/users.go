package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the synced user directory",
}

var usersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the user directory from the workspace",
	Long: `Fetches the full workspace member list and stores it locally. The
directory resolves user mentions and author names during content sync,
so refresh it before the first sync and after membership changes.

Example:
  slacksync users sync --source acme`,
	RunE: runUsersSync,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the locally stored user directory",
	RunE:  runUsersList,
}

var usersSource string

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersSyncCmd)
	usersCmd.AddCommand(usersListCmd)

	usersCmd.PersistentFlags().StringVar(&usersSource, "source", "", "Configured source name (required)")
	usersCmd.MarkPersistentFlagRequired("source")
}

func runUsersSync(cmd *cobra.Command, args []string) error {
	source, err := loadSource(usersSource)
	if err != nil {
		return err
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

	ctx := context.Background()
	allowed, err := s.CheckRateLimit(ctx, source.ID, "users.list")
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("rate limit window exhausted for users.list, retry shortly")
	}

	adapter := newAdapter(s, log)
	n, err := adapter.SyncUsers(ctx, source)
	if err != nil {
		return err
	}
	if err := s.RecordRequest(ctx, source.ID, "users.list"); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStderr(), "Stored %d users\n", n)
	return OutputJSON(map[string]any{"source": source.Name, "users": n})
}

func runUsersList(cmd *cobra.Command, args []string) error {
	source, err := loadSource(usersSource)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	directory, err := s.Directory(context.Background(), source.ID)
	if err != nil {
		return err
	}
	return OutputJSON(directory)
}
