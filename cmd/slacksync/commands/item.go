package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var itemCmd = &cobra.Command{
	Use:   "item <external-id>",
	Short: "Fetch one content item by its Slack timestamp",
	Long: `Item looks up a single message or thread by external id (the Slack
message timestamp, e.g. 1700000000.000100).

By default the item is fetched live from Slack, probing each configured
channel; --local reads the previously synced copy from the database
instead.

Examples:
  slacksync item 1700000000.000100 --source acme
  slacksync item 1700000000.000100 --source acme --local`,
	Args: cobra.ExactArgs(1),
	RunE: runItem,
}

var (
	itemSource string
	itemLocal  bool
	itemSave   bool
)

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.Flags().StringVar(&itemSource, "source", "", "Configured source name (required)")
	itemCmd.Flags().BoolVar(&itemLocal, "local", false, "Read from the local store instead of Slack")
	itemCmd.Flags().BoolVar(&itemSave, "save", false, "Upsert the fetched item into the local store")
	itemCmd.MarkFlagRequired("source")
}

func runItem(cmd *cobra.Command, args []string) error {
	externalID := args[0]

	source, err := loadSource(itemSource)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	if itemLocal {
		item, err := s.GetItem(ctx, source.ID, externalID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("item %s not found in local store", externalID)
		}
		return OutputJSON(item)
	}

	log, err := newRunLogger()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Sync()

	adapter := newAdapter(s, log)
	item, err := adapter.FetchItem(ctx, source, externalID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s not found in any configured channel", externalID)
	}

	if itemSave {
		if err := s.SaveItem(ctx, source.ID, *item); err != nil {
			return err
		}
	}

	return OutputJSON(item)
}
