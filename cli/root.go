// Package cli implements the feedback-radar command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"feedback-radar/config"
)

var rootCmd = &cobra.Command{
	Use:   "feedback-radar",
	Short: "Turn forum chatter about a product into a prioritised feedback report",
	Long: `feedback-radar collects posts that mention a company, classifies them with an
LLM, scores and clusters the high-signal feedback into focus areas and compares
each run with the previous one.

Examples:
  feedback-radar run --out report.json        # one run, report to a file
  feedback-radar serve                        # scheduler, Telegram bot and HTTP API
  feedback-radar analyze --input items.json   # offline analysis of classified items`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (default $FEEDBACK_RADAR_CONFIG or ./config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs a JSON logger at the given level as the default.
func setupLogging(w io.Writer, level string) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
}
