package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dyluth/tangle/internal/dataset"
	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/trainer"
	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/spf13/cobra"
)

var (
	identifyModel    string
	identifyRun      string
	identifyFeatures string
	identifyInput    string
	identifyOutput   string
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Run a trained model's champion on exemplars",
	Long: `Decide labels with the champion team of a trained model.

The model is read from a file (--model) or from the run store (--run).
Exemplars come from --features (one comma-separated vector) or --input
(a JSON-lines file in the training format). With --input, exemplar labels
are compared against the decisions and an accuracy summary is printed.

Examples:
  tangle identify --model model.tpg --features 0.4,0.9
  tangle identify --run latest --input holdout.jsonl --output json`,
	Args: cobra.NoArgs,
	RunE: runIdentify,
}

func init() {
	identifyCmd.Flags().StringVarP(&identifyModel, "model", "m", "", "Model file written by tangle train --output")
	identifyCmd.Flags().StringVarP(&identifyRun, "run", "r", "", "Load the model saved by this run (ID, prefix or 'latest')")
	identifyCmd.Flags().StringVarP(&identifyFeatures, "features", "f", "", "Comma-separated feature vector")
	identifyCmd.Flags().StringVarP(&identifyInput, "input", "i", "", "JSON-lines exemplar file")
	identifyCmd.Flags().StringVarP(&identifyOutput, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(identifyCmd)
}

// identification is one decision as written by --output json.
type identification struct {
	ID         string    `json:"id"`
	NoDecision bool      `json:"no_decision"`
	Kind       string    `json:"kind,omitempty"`
	Label      *int64    `json:"label,omitempty"`
	Vector     []float64 `json:"vector,omitempty"`
	Team       uint64    `json:"team,omitempty"`
	Learner    uint64    `json:"learner,omitempty"`
	Path       []uint64  `json:"path"`
	Expected   *int64    `json:"expected,omitempty"`
	Correct    *bool     `json:"correct,omitempty"`
}

func runIdentify(cmd *cobra.Command, args []string) error {
	if identifyOutput != "default" && identifyOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", identifyOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	exemplars, labelled, err := identifyExemplars()
	if err != nil {
		return err
	}

	model, err := loadModel(context.Background(), identifyModel, identifyRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	correct, scored := 0, 0
	for i := range exemplars {
		ex := &exemplars[i]
		d, err := trainer.Identify(model, ex)
		if errors.Is(err, tpg.ErrInvalidExemplar) {
			printer.Warning("Skipping invalid exemplar: %v\n", err)
			continue
		}
		if err != nil {
			return printer.ErrorWithContext("identification failed", err.Error(),
				map[string]string{"Exemplar": ex.ID}, nil)
		}

		scored++
		id := toIdentification(ex, d, labelled)
		if id.Correct != nil && *id.Correct {
			correct++
		}
		if err := writeIdentification(out, id); err != nil {
			return err
		}
	}

	if scored == 0 {
		return printer.Error("no valid exemplars", "Every exemplar failed validation.",
			[]string{"Check that each exemplar has a non-empty, finite feature vector"})
	}
	if labelled && identifyOutput == "default" {
		fmt.Fprintf(out, "\n%d/%d correct (%.2f%%)\n", correct, scored,
			100*float64(correct)/float64(scored))
	}
	return nil
}

// identifyExemplars reads the exemplars named by --features or --input and
// reports whether their labels are meaningful.
func identifyExemplars() ([]tpg.Exemplar, bool, error) {
	switch {
	case identifyFeatures != "" && identifyInput != "":
		return nil, false, printer.Error("conflicting inputs", "--features and --input cannot be combined.", nil)

	case identifyFeatures != "":
		features, err := parseFeatures(identifyFeatures)
		if err != nil {
			return nil, false, printer.Error("invalid --features", err.Error(),
				[]string{"Pass comma-separated numbers:\n  --features 0.4,0.9,1.5"})
		}
		return []tpg.Exemplar{{ID: "features", Features: features}}, false, nil

	case identifyInput != "":
		ds, err := dataset.Load(identifyInput)
		if err != nil {
			return nil, false, printer.ErrorWithContext("failed to load exemplars", err.Error(),
				map[string]string{"Input": identifyInput}, nil)
		}
		exemplars, err := ds.Exemplars(context.Background())
		if err != nil {
			return nil, false, err
		}
		return exemplars, true, nil

	default:
		return nil, false, printer.Error(
			"no exemplars given",
			"Nothing to identify.",
			[]string{"Pass a feature vector:\n  --features 0.4,0.9", "Pass a JSON-lines file:\n  --input exemplars.jsonl"},
		)
	}
}

func parseFeatures(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	features := make([]float64, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %q is not a number", i, p)
		}
		features = append(features, v)
	}
	return features, nil
}

func toIdentification(ex *tpg.Exemplar, d tpg.Decision, labelled bool) identification {
	id := identification{
		ID:         ex.ID,
		NoDecision: d.NoDecision,
		Path:       make([]uint64, len(d.Path)),
	}
	for i, t := range d.Path {
		id.Path[i] = uint64(t)
	}
	if !d.NoDecision {
		id.Kind = d.Kind.String()
		id.Team = uint64(d.Team)
		id.Learner = uint64(d.Learner)
		id.Vector = d.Vector
		if d.Kind == tpg.ActionLabel {
			label := d.Label
			id.Label = &label
		}
	}
	if labelled {
		expected := ex.Label
		correct := tpg.Prediction{Exemplar: ex, Decision: d}.Correct()
		id.Expected = &expected
		id.Correct = &correct
	}
	return id
}

func writeIdentification(w io.Writer, id identification) error {
	if identifyOutput == "json" {
		data, err := json.Marshal(id)
		if err != nil {
			return fmt.Errorf("failed to marshal decision: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var decision string
	switch {
	case id.NoDecision:
		decision = "no decision"
	case id.Label != nil:
		decision = fmt.Sprintf("label %d", *id.Label)
	default:
		decision = fmt.Sprintf("vector %v", id.Vector)
	}

	line := fmt.Sprintf("%s: %s (path %v)", id.ID, decision, id.Path)
	if id.Correct != nil {
		mark := "✓"
		if !*id.Correct {
			mark = fmt.Sprintf("✗ expected %d", *id.Expected)
		}
		line += " " + mark
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
