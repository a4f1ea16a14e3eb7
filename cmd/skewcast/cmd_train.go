package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/training"
	"github.com/skewcast/skewcast/internal/plotting"
)

// trainCmd fits a density model and activates its snapshot
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a density model and activate its snapshot",
	Long: `Train the density network on a symbol's stored history and activate
the resulting snapshot for serving.

With --csv the file is imported first. When the symbol has too little
history the run falls back to a deterministic synthetic random walk, with
a warning, so the pipeline stays exercisable end to end. With --plots the
training curve, quantile fan and PIT histogram are rendered as PNGs.

Examples:
  skewcast train --symbol CL
  skewcast train --symbol CL --csv data/cl.csv --plots figures/
  skewcast train --symbol NG --config model.toml`,
	RunE: runTrain,
}

var (
	trainSymbol string
	trainConfig string
	trainCSV    string
	trainPlots  string
)

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainSymbol, "symbol", "", "Symbol to train on (required)")
	trainCmd.Flags().StringVar(&trainConfig, "config", "", "TOML file with feature/training settings")
	trainCmd.Flags().StringVar(&trainCSV, "csv", "", "CSV file to import before training")
	trainCmd.Flags().StringVar(&trainPlots, "plots", "", "Directory to write diagnostic PNGs into")
	_ = trainCmd.MarkFlagRequired("symbol")
}

func runTrain(cmd *cobra.Command, args []string) error {
	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.close()

	symbol := strings.ToUpper(trainSymbol)

	if trainCSV != "" {
		closes, skipped, err := marketdata.LoadCSV(trainCSV, "", "")
		if err != nil {
			return fmt.Errorf("failed to load CSV: %w", err)
		}
		stored, err := st.history.SaveDailyCloses(symbol, closes)
		if err != nil {
			return fmt.Errorf("failed to store closes: %w", err)
		}
		st.log.Info().Int("rows", stored).Int("skipped", skipped).
			Str("symbol", symbol).Msg("CSV imported")
	}

	fileCfg := training.DefaultFileConfig()
	configPath := trainConfig
	if configPath == "" {
		configPath = st.cfg.ModelConfigPath
	}
	if configPath != "" {
		fileCfg, err = training.LoadFileConfig(configPath, st.log)
		if err != nil {
			return fmt.Errorf("failed to load model config: %w", err)
		}
	}

	result, err := st.trainingService(fileCfg).Train(symbol)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Println()
	printReport(result)

	f, err := st.forecastService().Generate(symbol)
	if err != nil {
		// A synthetic-trained model over sparse real history lands here
		st.log.Warn().Err(err).Msg("Model trained but forecast generation failed")
	} else {
		fmt.Println()
		printQuantiles(f)
	}

	if trainPlots != "" {
		return renderTrainingPlots(st, symbol, result.Run.ID, trainPlots)
	}
	return nil
}

// printReport summarizes a finished training run
func printReport(result *training.Result) {
	report := result.Report

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", result.Run.ID)
	fmt.Fprintf(w, "Snapshot\t%s (active)\n", result.Snapshot.ID)
	fmt.Fprintf(w, "Samples\t%d (%d train / %d val)\n",
		report.SampleCount, report.TrainSamples, report.ValSamples)
	if report.StoppedEarly {
		fmt.Fprintf(w, "Epochs\t%d (stopped early)\n", report.EpochsRun)
	} else {
		fmt.Fprintf(w, "Epochs\t%d\n", report.EpochsRun)
	}
	fmt.Fprintf(w, "Best epoch\t%d\n", report.BestEpoch)
	fmt.Fprintf(w, "Best val NLL\t%.4f\n", report.BestValNLL)
	fmt.Fprintf(w, "Final train NLL\t%.4f\n", report.FinalTrainNLL)
	w.Flush()
}

// renderTrainingPlots writes the loss curve of the run plus the fan and
// PIT figures of the now-active model
func renderTrainingPlots(st *stack, symbol, runID, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}

	curve, err := st.charts.LossCurve(runID)
	if err != nil {
		return fmt.Errorf("failed to assemble loss curve: %w", err)
	}
	lossPath := filepath.Join(dir, plotName(symbol, "loss"))
	if err := plotting.SaveLossCurve(curve, lossPath); err != nil {
		return err
	}

	fanPath, pitPath, err := renderModelPlots(st, symbol, dir)
	if err != nil {
		return err
	}

	fmt.Printf("\nWrote %s, %s, %s\n", lossPath, fanPath, pitPath)
	return nil
}

// renderModelPlots writes the fan and PIT figures of the active model and
// returns their paths
func renderModelPlots(st *stack, symbol, dir string) (string, string, error) {
	fan, err := st.charts.FanChart(symbol, 0)
	if err != nil {
		return "", "", fmt.Errorf("failed to assemble fan chart: %w", err)
	}
	fanPath := filepath.Join(dir, plotName(symbol, "fan"))
	if err := plotting.SaveFanChart(fan, fanPath); err != nil {
		return "", "", err
	}

	pit, err := st.charts.PITChart(symbol)
	if err != nil {
		return "", "", fmt.Errorf("failed to assemble PIT chart: %w", err)
	}
	pitPath := filepath.Join(dir, plotName(symbol, "pit"))
	if err := plotting.SavePITChart(pit, pitPath); err != nil {
		return "", "", err
	}

	return fanPath, pitPath, nil
}

func plotName(symbol, kind string) string {
	return fmt.Sprintf("%s_%s.png", strings.ToLower(symbol), kind)
}
