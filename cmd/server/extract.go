package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sozercan/session-analyzer/internal/extract"
)

var showStrategy bool

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Recover a JSON object from captured model output",
	Long:  "Reads model output from a file or stdin, runs the JSON extractor and prints the recovered object.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrapf(err, "open %s", args[0])
			}
			defer f.Close()
			in = f
		}
		e := extract.New(
			extract.WithMaxTrim(cfg.Analysis.RepairTrimLimit),
			extract.WithEmptyRepair(cfg.Analysis.AcceptEmptyRepair),
		)
		return runExtract(in, cmd.OutOrStdout(), e, showStrategy)
	},
}

func init() {
	extractCmd.Flags().BoolVar(&showStrategy, "strategy", false, "wrap the record with the recovery strategy and attempt count")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(in io.Reader, out io.Writer, e *extract.Extractor, withStrategy bool) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return eris.Wrap(err, "read input")
	}

	res, ok := e.Extract(string(data))
	if !ok {
		return eris.New("no JSON object could be recovered")
	}
	zap.L().Debug("recovered JSON",
		zap.String("strategy", string(res.Strategy)),
		zap.Int("attempts", res.Attempts),
	)

	var v any = res.Record
	if withStrategy {
		v = map[string]any{
			"strategy": res.Strategy,
			"attempts": res.Attempts,
			"record":   res.Record,
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
