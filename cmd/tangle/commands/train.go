package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dyluth/tangle/internal/dataset"
	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/runs"
	"github.com/dyluth/tangle/internal/trainer"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	trainOutput  string
	trainResume  string
	trainWorkers int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Evolve a model from the configured dataset",
	Long: `Train a Tangled Program Graph population as configured by tangle.yml.

The dataset path is resolved relative to the configuration file. When a run
store is configured the run record, its generation events and the final
model are written to Redis; --output also writes the model to a file.

Interrupting training (Ctrl+C) stops at the next generation boundary and
keeps the last completed generation.

Examples:
  # Train and save the model locally
  tangle train --output model.tpg

  # Continue a stored run for the remaining generation budget
  tangle train --resume 3f2a9c`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "", "Write the trained model to this file")
	trainCmd.Flags().StringVar(&trainResume, "resume", "", "Resume from the model saved by this run (ID or prefix)")
	trainCmd.Flags().IntVarP(&trainWorkers, "workers", "w", 0, "Evaluation workers (overrides run.workers)")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dsPath := cfg.Dataset.Path
	if !filepath.IsAbs(dsPath) {
		dsPath = filepath.Join(filepath.Dir(configPath), dsPath)
	}
	ds, err := dataset.Load(dsPath)
	if err != nil {
		return printer.ErrorWithContext("failed to load dataset", err.Error(),
			map[string]string{"Dataset": dsPath}, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectStore(ctx, cfg)
	if errors.Is(err, errNoStore) {
		client = nil
	} else if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}
	if client == nil && trainOutput == "" {
		return printer.Error(
			"nowhere to save the model",
			"No run store is configured and --output was not given.",
			[]string{"Write the model to a file:\n  tangle train --output model.tpg", "Configure a store section in tangle.yml"},
		)
	}

	runID := uuid.New().String()
	opts := []trainer.Option{trainer.WithRunID(runID), trainer.WithWorkers(trainWorkers)}

	if trainResume != "" {
		m, err := loadModel(ctx, "", trainResume)
		if err != nil {
			return err
		}
		opts = append(opts, trainer.WithModel(m))
	}

	var rec *runs.Recorder
	var run *store.Run
	if client != nil {
		run = &store.Run{
			ID:          runID,
			Name:        cfg.Run.Name,
			Seed:        cfg.SeedValue(),
			Generations: cfg.Run.Generations,
			Population:  cfg.Run.Population,
			Args:        cfg.Args(),
		}
		rec = runs.NewRecorder(client, run)
		opts = append(opts, trainer.WithEventSink(rec))
	}

	engine, err := trainer.New(cfg, ds, nil, opts...)
	if err != nil {
		return printer.Error("failed to start training", err.Error(), nil)
	}

	if rec != nil {
		run.Labels = engine.Model().Labels
		run.Generation = engine.Generation()
		if err := rec.Start(ctx); err != nil {
			return printer.Error("failed to record run", err.Error(), nil)
		}
	}

	if addr := cfg.Run.HealthAddr; addr != "" {
		var pinger trainer.Pinger
		if client != nil {
			pinger = client
		}
		hs := trainer.NewHealthServer(addr, pinger, engine.Generation)
		if err := hs.Start(); err != nil {
			return printer.Error("failed to start health server", err.Error(), nil)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.Shutdown(shutdownCtx)
		}()
		printer.Info("Health and metrics on http://%s/healthz\n", hs.Addr())
	}

	printer.Step("Training '%s' (run %s) on %d exemplars from %s\n", cfg.Run.Name, runID, ds.Len(), ds.Name)

	res, trainErr := engine.Train(ctx)

	// the model always holds the last completed generation, so it is saved even on failure
	saveCtx := context.WithoutCancel(ctx)
	if err := saveModel(saveCtx, client, runID, engine.Model()); err != nil {
		return err
	}

	if trainErr != nil {
		if rec != nil {
			if err := rec.Fail(saveCtx, trainErr); err != nil {
				printer.Warning("Failed to record run failure: %v\n", err)
			}
		}
		return printer.ErrorWithContext(
			"training failed",
			trainErr.Error(),
			map[string]string{"Run": runID, "Generation": fmt.Sprint(engine.Generation())},
			nil,
		)
	}

	switch {
	case res.Stopped:
		printer.Warning("Stopped after generation %d\n", res.Model.Generation)
	case res.ReachedTarget:
		printer.Success("Target reward reached at generation %d\n", res.Model.Generation)
	default:
		printer.Success("Completed %d generations\n", res.Model.Generation)
	}
	printer.Info("  Run:       %s\n", runID)
	printer.Info("  Champion:  #%d\n", res.Model.Champion)
	printer.Info("  Reward:    %.4f\n", res.BestReward)
	if trainOutput != "" {
		printer.Info("  Model:     %s\n", trainOutput)
	}
	return nil
}

// saveModel writes the model to the store and/or --output.
func saveModel(ctx context.Context, client *store.Client, runID string, m *tpg.Model) error {
	if client != nil {
		if err := client.SaveModel(ctx, runID, m); err != nil {
			return printer.Error("failed to save model", err.Error(), nil)
		}
	}
	if trainOutput != "" {
		data, err := tpg.Marshal(m)
		if err != nil {
			return printer.Error("failed to encode model", err.Error(), nil)
		}
		if err := os.WriteFile(trainOutput, data, 0644); err != nil {
			return printer.Error("failed to write model", err.Error(), nil)
		}
	}
	return nil
}
