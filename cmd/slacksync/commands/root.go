package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldline/slacksync/internal/config"
	"github.com/fieldline/slacksync/internal/connector"
	"github.com/fieldline/slacksync/internal/logging"
	"github.com/fieldline/slacksync/internal/slack"
	"github.com/fieldline/slacksync/internal/storage"
	"github.com/fieldline/slacksync/internal/store"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	configPath   string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slacksync",
	Short: "Sync Slack channel content into a normalized local store",
	Long: `slacksync pulls messages, threads, and attachments from Slack
workspaces and normalizes them into platform-agnostic content items.

Connected workspaces are configured in ~/.slacksync/config under
[source.<name>] sections. Synced items, the user directory, and
per-channel watermarks are stored in a local SQLite database for
incremental resume.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, jsonl)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.slacksync/slacksync.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.slacksync/config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose console logging")
}

// OutputJSON writes JSON to stdout with optional pretty printing
func OutputJSON(data any) error {
	var output []byte
	var err error

	if outputFormat == "json" {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Println(string(output))
	return nil
}

// OutputError writes error message to stderr
func OutputError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = store.DefaultPath()
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// newRunLogger creates the run-scoped logger. Every invocation gets a
// fresh run id so one pass can be isolated in the shared log file.
func newRunLogger() (*zap.Logger, error) {
	return logging.New(logging.DefaultLogPath(), uuid.NewString(), verbose)
}

// newAdapter wires the full connector stack: API client, blob store for
// attachments, and the SQLite store for the user directory and watermarks.
func newAdapter(s *store.Store, log *zap.Logger) *connector.Adapter {
	return connector.NewAdapter(slack.New(), storage.NewFS(storage.DefaultRoot()), s, s, log)
}

// loadSource resolves one configured source by name.
func loadSource(name string) (connector.Source, error) {
	cfg, err := loadConfig()
	if err != nil {
		return connector.Source{}, err
	}
	return cfg.Source(name)
}
