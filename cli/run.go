package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the report",
	Long: `Fetch posts, classify them, synthesize a report against the previous
snapshot, persist it and deliver the digest if Telegram is configured.
The report is written as JSON to stdout or to --out.`,
	Args: cobra.NoArgs,
	RunE: runOnceCmd,
}

func init() {
	runCmd.Flags().StringP("out", "o", "", "write the report JSON to this file")
}

func runOnceCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg.LogLevel)

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runOnce(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeJSON(w, res.Report); err != nil {
		return err
	}

	if len(res.Errors) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Completed with %d stage error(s)\n", len(res.Errors))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
