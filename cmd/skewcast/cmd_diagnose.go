package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skewcast/skewcast/internal/modules/charts"
)

// diagnoseCmd reports the calibration of the active model
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Render calibration diagnostics for the active model",
	Long: `Evaluate the active model over the symbol's full stored history and
write its diagnostics: the PIT histogram with a Kolmogorov-Smirnov
uniformity check, interval coverage, and the in-sample quantile fan.

The report is written as JSON next to the fan and PIT PNGs. With
--horizon a Monte Carlo multi-day price fan is written as well.

Examples:
  skewcast diagnose --symbol CL --out figures/
  skewcast diagnose --symbol CL --out figures/ --horizon 20`,
	RunE: runDiagnose,
}

var (
	diagnoseSymbol  string
	diagnoseOut     string
	diagnoseHorizon int
	diagnosePaths   int
	diagnoseSeed    int64
)

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseCmd.Flags().StringVar(&diagnoseSymbol, "symbol", "", "Symbol to diagnose (required)")
	diagnoseCmd.Flags().StringVar(&diagnoseOut, "out", "figures", "Directory to write the report into")
	diagnoseCmd.Flags().IntVar(&diagnoseHorizon, "horizon", 0, "Also simulate a multi-day fan this many sessions out")
	diagnoseCmd.Flags().IntVar(&diagnosePaths, "paths", 0, "Monte Carlo paths for the horizon fan (default 2000)")
	diagnoseCmd.Flags().Int64Var(&diagnoseSeed, "seed", 0, "Horizon simulation seed (default from the clock)")
	_ = diagnoseCmd.MarkFlagRequired("symbol")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.close()

	symbol := strings.ToUpper(diagnoseSymbol)
	if err := os.MkdirAll(diagnoseOut, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	pit, err := st.charts.PITChart(symbol)
	if err != nil {
		return fmt.Errorf("failed to diagnose %s: %w", symbol, err)
	}

	reportPath := filepath.Join(diagnoseOut,
		fmt.Sprintf("%s_diagnostics.json", strings.ToLower(symbol)))
	if err := writeJSONFile(reportPath, pit); err != nil {
		return err
	}

	fanPath, pitPath, err := renderModelPlots(st, symbol, diagnoseOut)
	if err != nil {
		return err
	}

	printDiagnostics(pit)
	fmt.Printf("\nWrote %s, %s, %s\n", reportPath, fanPath, pitPath)

	if diagnoseHorizon > 0 {
		horizon, err := st.forecastService().Horizon(symbol, diagnoseHorizon, diagnosePaths, diagnoseSeed)
		if err != nil {
			return fmt.Errorf("failed to simulate horizon: %w", err)
		}
		horizonPath := filepath.Join(diagnoseOut,
			fmt.Sprintf("%s_horizon.json", strings.ToLower(symbol)))
		if err := writeJSONFile(horizonPath, horizon); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d sessions, %d paths)\n",
			horizonPath, horizon.Horizon, horizon.Paths)
	}
	return nil
}

// printDiagnostics prints the calibration verdict and coverage table
func printDiagnostics(pit *charts.PITChart) {
	verdict := "uniform"
	if !pit.Histogram.Uniform {
		verdict = "NOT uniform"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol\t%s\n", pit.Symbol)
	fmt.Fprintf(w, "Rows\t%d\n", pit.Rows)
	fmt.Fprintf(w, "Mean NLL\t%.4f\n", pit.MeanNLL)
	fmt.Fprintf(w, "Mean PIT\t%.4f\n", pit.MeanPIT)
	fmt.Fprintf(w, "KS\t%.4f (critical %.4f, %s)\n",
		pit.Histogram.KSStat, pit.Histogram.KSCritical, verdict)
	w.Flush()

	fmt.Println("\nInterval coverage:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "nominal\tobserved\tinterval")
	for _, c := range pit.Coverage {
		fmt.Fprintf(w, "%.0f%%\t%.1f%%\t[q%02.0f, q%02.0f]\n",
			c.Nominal*100, c.Observed*100, c.Lo*100, c.Hi*100)
	}
	w.Flush()
}

// writeJSONFile writes indented JSON to path
func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
