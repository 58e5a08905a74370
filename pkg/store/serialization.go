package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Scalar fields map to individual hash fields; labels and args are JSON-encoded
// into single fields.

// RunToHash converts a Run struct to a Redis hash format.
func RunToHash(r *Run) (map[string]interface{}, error) {
	labelsJSON, err := json.Marshal(r.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal labels: %w", err)
	}
	argsJSON, err := json.Marshal(r.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	hash := map[string]interface{}{
		"id":            r.ID,
		"name":          r.Name,
		"status":        string(r.Status),
		"seed":          strconv.FormatUint(r.Seed, 10),
		"generation":    r.Generation,
		"generations":   r.Generations,
		"population":    r.Population,
		"champion":      strconv.FormatUint(r.Champion, 10),
		"best_reward":   strconv.FormatFloat(r.BestReward, 'g', -1, 64),
		"labels":        string(labelsJSON),
		"args":          string(argsJSON),
		"error":         r.Error,
		"started_at_ms": r.StartedAtMs,
		"updated_at_ms": r.UpdatedAtMs,
	}

	return hash, nil
}

// HashToRun converts a Redis hash to a Run struct.
func HashToRun(hash map[string]string) (*Run, error) {
	generation, err := strconv.Atoi(hash["generation"])
	if err != nil {
		return nil, fmt.Errorf("invalid generation field: %w", err)
	}
	seed, err := strconv.ParseUint(hash["seed"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seed field: %w", err)
	}
	champion, err := strconv.ParseUint(hash["champion"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid champion field: %w", err)
	}
	bestReward, err := strconv.ParseFloat(hash["best_reward"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid best_reward field: %w", err)
	}

	var labels []int64
	if s := hash["labels"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
	}
	args := map[string]string{}
	if s := hash["args"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	// Optional counters default to 0
	generations, _ := strconv.Atoi(hash["generations"])
	population, _ := strconv.Atoi(hash["population"])
	startedAtMs, _ := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	return &Run{
		ID:          hash["id"],
		Name:        hash["name"],
		Status:      RunStatus(hash["status"]),
		Seed:        seed,
		Generation:  generation,
		Generations: generations,
		Population:  population,
		Champion:    champion,
		BestReward:  bestReward,
		Labels:      labels,
		Args:        args,
		Error:       hash["error"],
		StartedAtMs: startedAtMs,
		UpdatedAtMs: updatedAtMs,
	}, nil
}
