package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/modules/forecast"
)

// forecastCmd publishes and prints the next-session density
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Generate and print the next-session forecast",
	Long: `Generate a forecast conditioned on the symbol's most recent close,
persist it, and print the quantile fan.

Requires an active model snapshot (see 'skewcast train') and enough stored
history to fill the indicator windows.

Examples:
  skewcast forecast --symbol CL
  skewcast forecast --symbol CL --json`,
	RunE: runForecast,
}

var (
	forecastSymbol string
	forecastJSON   bool
)

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().StringVar(&forecastSymbol, "symbol", "", "Symbol to forecast (required)")
	forecastCmd.Flags().BoolVar(&forecastJSON, "json", false, "Print the forecast as JSON")
	_ = forecastCmd.MarkFlagRequired("symbol")
}

func runForecast(cmd *cobra.Command, args []string) error {
	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.close()

	symbol := strings.ToUpper(forecastSymbol)
	f, err := st.forecastService().Generate(symbol)
	if err != nil {
		return fmt.Errorf("failed to generate forecast: %w", err)
	}

	if forecastJSON {
		return printForecastJSON(f)
	}
	printQuantiles(f)
	return nil
}

// printForecastJSON emits the forecast with its quantile fan attached
func printForecastJSON(f *forecast.Forecast) error {
	payload := struct {
		*forecast.Forecast
		Quantiles []forecast.QuantilePoint `json:"quantiles"`
	}{
		Forecast:  f,
		Quantiles: f.Quantiles(domain.FanProbabilities),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// printQuantiles prints the published quantile fan as a table
func printQuantiles(f *forecast.Forecast) {
	fmt.Printf("%s forecast for %s (base close %.2f on %s)\n",
		f.Symbol, f.TargetDate, f.BaseClose, f.BaseDate)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "p\tlog return\tprice")
	for _, q := range f.Quantiles(domain.FanProbabilities) {
		fmt.Fprintf(w, "%.2f\t%+.5f\t%.2f\n", q.P, q.Return, q.Price)
	}
	w.Flush()
}
