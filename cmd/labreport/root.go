package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	inMemory bool
)

var rootCmd = &cobra.Command{
	Use:   "labreport",
	Short: "Parse OCR'd laboratory reports into structured JSON",
	Long: `labreport turns the text of scanned laboratory reports into structured
records: patient info, lab info and one row per test result.

Inputs can be plain text, document-AI JSON responses, PDFs or images.
Reviewer corrections are learned and applied to later parses.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./labreport.yaml or ~/.labreport/labreport.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(
		&inMemory, "inmem", false, "use an in-memory SQLite database instead of database.dsn",
	)

	rootCmd.AddCommand(parseCmd, batchCmd, correctionsCmd, migrateCmd, dbhealthCmd)
}
