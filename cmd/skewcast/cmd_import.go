package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skewcast/skewcast/internal/marketdata"
)

// importCmd loads a CSV of daily closes into a symbol's history database
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import daily closes from a CSV file",
	Long: `Import a CSV of daily closes into a symbol's history database.

The file needs a header row with a date column and a close column; several
date layouts are recognized and lookup is case-insensitive. Rows are keyed
by date, so re-importing a corrected file is safe.

Examples:
  skewcast import --csv data/cl.csv --symbol CL
  skewcast import --csv dump.csv --symbol NG --date-col Day --close-col Settle`,
	RunE: runImport,
}

var (
	importCSV      string
	importSymbol   string
	importDateCol  string
	importCloseCol string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importCSV, "csv", "", "Path to the CSV file (required)")
	importCmd.Flags().StringVar(&importSymbol, "symbol", "", "Symbol to store the rows under (required)")
	importCmd.Flags().StringVar(&importDateCol, "date-col", "", "Date column name (default \"date\")")
	importCmd.Flags().StringVar(&importCloseCol, "close-col", "", "Close column name (default \"close\")")
	_ = importCmd.MarkFlagRequired("csv")
	_ = importCmd.MarkFlagRequired("symbol")
}

func runImport(cmd *cobra.Command, args []string) error {
	closes, skipped, err := marketdata.LoadCSV(importCSV, importDateCol, importCloseCol)
	if err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.close()

	symbol := strings.ToUpper(importSymbol)
	stored, err := st.history.SaveDailyCloses(symbol, closes)
	if err != nil {
		return fmt.Errorf("failed to store closes: %w", err)
	}

	fmt.Printf("Imported %d rows for %s (%d skipped)\n\n", stored, symbol, skipped)

	summary, err := st.history.Summary(symbol)
	if err != nil {
		return fmt.Errorf("failed to summarize history: %w", err)
	}
	printSummary(summary)
	return nil
}

// printSummary prints the stored coverage and realized statistics
func printSummary(s *marketdata.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol\t%s\n", s.Symbol)
	fmt.Fprintf(w, "Rows\t%d\n", s.Rows)
	fmt.Fprintf(w, "Range\t%s to %s\n", s.FirstDate, s.LastDate)
	fmt.Fprintf(w, "Last close\t%.2f\n", s.LastClose)
	fmt.Fprintf(w, "Annualized vol\t%.1f%%\n", s.AnnualizedVol*100)
	fmt.Fprintf(w, "Max drawdown\t%.1f%%\n", s.MaxDrawdown*100)
	fmt.Fprintf(w, "Sharpe\t%.2f\n", s.SharpeRatio)
	w.Flush()
}
