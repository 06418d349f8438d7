package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"feedback-radar/api"
	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score, filter and cluster classified items offline",
	Long: `Run the deterministic part of synthesis on a JSON array of classified
items, without calling an LLM. With --previous, the result is compared
against a stored snapshot.

Examples:
  feedback-radar analyze --input items.json
  feedback-radar analyze --input items.json --previous snapshot.json`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringP("input", "i", "", "path to a JSON array of classified items")
	analyzeCmd.Flags().StringP("previous", "p", "", "path to a previous snapshot JSON")
	analyzeCmd.MarkFlagRequired("input")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	previous, _ := cmd.Flags().GetString("previous")

	var req api.AnalyzeRequest
	if err := readJSON(input, &req.Items); err != nil {
		return fmt.Errorf("read items: %w", err)
	}
	for _, it := range req.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	if previous != "" {
		var snap trend.Snapshot
		if err := readJSON(previous, &snap); err != nil {
			return fmt.Errorf("read previous snapshot: %w", err)
		}
		req.Previous = &snap
	}

	resp := api.Analyze(synthesis.NewSynthesizer(nil), req, time.Now())
	return writeJSON(cmd.OutOrStdout(), resp)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
