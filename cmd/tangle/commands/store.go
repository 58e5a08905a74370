package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/tangle/internal/config"
	"github.com/dyluth/tangle/internal/printer"
	"github.com/dyluth/tangle/internal/resolver"
	"github.com/dyluth/tangle/internal/runs"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/dyluth/tangle/pkg/tpg"
)

// redisURLEnv names the environment fallback for --redis-url.
const redisURLEnv = "TANGLE_REDIS_URL"

// errNoStore is returned by storeSettings when no Redis URL is configured anywhere.
var errNoStore = errors.New("no run store configured")

// loadConfig loads --config and renders failures for the terminal.
func loadConfig() (*config.TangleConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Create a starter configuration:\n  tangle init"},
		)
	}
	return cfg, nil
}

// storeSettings resolves the Redis URL and instance from flags, the
// environment and, when cfg is non-nil, its store section.
func storeSettings(cfg *config.TangleConfig) (string, string, error) {
	url := redisURLFlag
	if url == "" {
		url = os.Getenv(redisURLEnv)
	}
	instance := instanceFlag

	if cfg != nil && cfg.Store != nil {
		if url == "" {
			url = cfg.Store.RedisURL
		}
		if instance == "" {
			instance = cfg.Store.Instance
		}
	}
	if instance == "" {
		instance = config.DefaultInstance
	}

	if url == "" {
		return "", "", errNoStore
	}
	return url, instance, nil
}

// connectStore opens and pings the run store.
func connectStore(ctx context.Context, cfg *config.TangleConfig) (*store.Client, error) {
	url, instance, err := storeSettings(cfg)
	if err != nil {
		return nil, err
	}

	client, err := store.NewClientFromURL(url, instance)
	if err != nil {
		return nil, printer.Error("invalid Redis URL", err.Error(), nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to the run store: %v", err),
			map[string]string{"URL": url, "Instance": instance},
			[]string{"Check the server is running and --redis-url is correct"},
		)
	}
	return client, nil
}

// requireStore connects for commands that cannot work without a store.
// The config file is optional for these commands.
func requireStore(ctx context.Context) (*store.Client, error) {
	var cfg *config.TangleConfig
	if _, err := os.Stat(configPath); err == nil {
		if cfg, err = loadConfig(); err != nil {
			return nil, err
		}
	}

	client, err := connectStore(ctx, cfg)
	if errors.Is(err, errNoStore) {
		return nil, printer.Error(
			"no run store configured",
			"This command reads runs from Redis.",
			[]string{
				"Pass the store URL:\n  --redis-url redis://localhost:6379/0",
				fmt.Sprintf("Set $%s", redisURLEnv),
				"Add a store section to tangle.yml",
			},
		)
	}
	return client, err
}

// resolveRun turns a run reference into a full ID, rendering lookup failures.
func resolveRun(ctx context.Context, client *store.Client, ref string) (string, error) {
	id, err := resolver.ResolveRunID(ctx, client, ref)
	if err == nil {
		return id, nil
	}

	var amb *resolver.AmbiguousError
	switch {
	case errors.As(err, &amb):
		return "", printer.Error("ambiguous run ID", resolver.FormatAmbiguousError(amb), nil)
	case resolver.IsNotFoundError(err):
		return "", printer.Error(
			"run not found",
			err.Error(),
			[]string{"List runs:\n  tangle runs"},
		)
	default:
		return "", printer.Error("failed to resolve run", err.Error(), nil)
	}
}

// loadModel reads a model from file, or from the store when a run reference is given.
func loadModel(ctx context.Context, modelFile, runRef string) (*tpg.Model, error) {
	if modelFile != "" {
		data, err := os.ReadFile(modelFile)
		if err != nil {
			return nil, printer.Error("failed to read model", err.Error(), nil)
		}
		m, err := tpg.Unmarshal(data)
		if err != nil {
			return nil, printer.ErrorWithContext("failed to decode model", err.Error(),
				map[string]string{"File": modelFile}, nil)
		}
		return m, nil
	}

	if runRef == "" {
		return nil, printer.Error(
			"no model specified",
			"A trained model is required.",
			[]string{"Load from a file:\n  --model model.tpg", "Load from the run store:\n  --run <run-id>"},
		)
	}

	client, err := requireStore(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	id, err := resolveRun(ctx, client, runRef)
	if err != nil {
		return nil, err
	}
	m, err := client.LoadModel(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, printer.Error("model not found", (&runs.RunNotFoundError{RunID: id}).Error(),
				[]string{"The run may still be in progress or may have failed:\n  tangle runs get " + id})
		}
		return nil, printer.Error("failed to load model", err.Error(), nil)
	}
	return m, nil
}
