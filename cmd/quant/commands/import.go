package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/s0_data"
)

// importCmd seeds a source table from CSV
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a source CSV into the store",
	Long: `Loads a CSV with a trade_date column into the source table of --table.
Rows are appended only when they continue the stored history.

Tables: preprocess, minute_bar, position (per --instrument), forex, macro

Example:
  go run ./cmd/quant import --table preprocess --instrument AU.SHF --file au.csv`,
	RunE: runImport,
}

var (
	importTable      string
	importInstrument string
	importFile       string
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importTable, "table", s0_data.KindPreprocess, "source kind")
	importCmd.Flags().StringVar(&importInstrument, "instrument", "", "instrument code for per-instrument sources")
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file")
	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	d, err := loadDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	f, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", importFile, err)
	}
	defer f.Close()

	res, err := d.runner.Import(cmd.Context(), importTable, importInstrument, f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	PrintKeyValue("Table", res.Table, 8)
	PrintKeyValue("Rows", fmt.Sprint(res.Rows), 8)
	if !res.Written {
		PrintWarning("Rows were not written: the file does not continue the stored history")
		return nil
	}
	PrintSuccess(fmt.Sprintf("Imported %d rows into %s", res.Rows, res.Table))
	return nil
}
