package commands

import (
	"context"
	"fmt"

	slackapi "github.com/rneatherway/slack"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage source credentials",
}

var authImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a token from the Slack Desktop app",
	Long: `Import extracts the signed-in token from the local Slack Desktop
app's data and stores it in the source's config section. Useful for
personal workspaces where creating a bot token is not an option.

Example:
  slacksync auth import --source acme --team myteam`,
	RunE: runAuthImport,
}

var authTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify a source's stored token",
	RunE:  runAuthTest,
}

var (
	authSource string
	authTeam   string
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authImportCmd)
	authCmd.AddCommand(authTestCmd)

	authCmd.PersistentFlags().StringVar(&authSource, "source", "", "Configured source name (required)")
	authCmd.MarkPersistentFlagRequired("source")

	authImportCmd.Flags().StringVar(&authTeam, "team", "", "Slack team domain, as in <team>.slack.com (required)")
	authImportCmd.MarkFlagRequired("team")
}

func runAuthImport(cmd *cobra.Command, args []string) error {
	auth, err := slackapi.GetCookieAuth(authTeam)
	if err != nil {
		return fmt.Errorf("failed to extract credentials from Slack Desktop: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.SetSourceToken(authSource, auth.Token)
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStderr(), "Stored token for source %q (team %s)\n", authSource, authTeam)
	return nil
}

func runAuthTest(cmd *cobra.Command, args []string) error {
	source, err := loadSource(authSource)
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

	adapter := newAdapter(s, log)
	ok, err := adapter.ValidateCredentials(context.Background(), source)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("token for source %q is missing or invalid", authSource)
	}

	fmt.Fprintf(cmd.OutOrStderr(), "Token for source %q is valid\n", authSource)
	return nil
}
