package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/ordpilot/internal/config"
	"github.com/lucasnoah/ordpilot/internal/db"
	"github.com/lucasnoah/ordpilot/internal/generate"
	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/orchestrator"
	"github.com/lucasnoah/ordpilot/internal/pipeline"
	"github.com/lucasnoah/ordpilot/internal/prompt"
	"github.com/lucasnoah/ordpilot/internal/retrieval"
	"github.com/lucasnoah/ordpilot/internal/worker"
)

// loadConfig loads the config named by --config, or searches the default
// locations.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadDefault()
}

// requireConfig loads the config and fails fast on any validation error,
// including the required validation bounds being unset.
func requireConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s\n", e)
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}
	return cfg, nil
}

// openDB opens and migrates the event database, returning it with a
// cleanup func.
func openDB(cfg *config.Config) (*db.DB, func(), error) {
	path := cfg.Storage.DBPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// openStore opens the run artifact store.
func openStore(cfg *config.Config) (*pipeline.Store, error) {
	if cfg.Storage.RunsDir != "" {
		return pipeline.NewStore(cfg.Storage.RunsDir), nil
	}
	return pipeline.DefaultStore()
}

// buildGenerator constructs the configured generation provider.
func buildGenerator(ctx context.Context, cfg *config.Config) (generate.Generator, error) {
	g := cfg.Generator
	switch g.Provider {
	case "genai":
		return generate.NewGenAI(ctx, os.Getenv(g.APIKeyEnv), g.Model)
	default:
		return generate.NewOllama(g.Endpoint, g.Model), nil
	}
}

// openIndex opens the retrieval index with its configured embedder. The
// second return closes the underlying store. A missing examples dir is not
// an error here; retrieval degrades to empty context at query time.
func openIndex(ctx context.Context, cfg *config.Config) (*retrieval.Index, func(), error) {
	path := cfg.Retrieval.IndexPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("get home dir: %w", err)
		}
		dir := filepath.Join(home, ".ordpilot")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
		path = filepath.Join(dir, "index.db")
	}
	store, err := retrieval.OpenStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	e := cfg.Embedding
	embedder, err := retrieval.NewEmbedder(ctx, retrieval.EmbedderConfig{
		Provider: e.Provider,
		Endpoint: e.Endpoint,
		Model:    e.Model,
		APIKey:   os.Getenv(e.APIKeyEnv),
	})
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("build embedder: %w", err)
	}
	return retrieval.NewIndex(store, embedder, cfg.Retrieval.ExamplesDir), func() { store.Close() }, nil
}

// newValidator builds the subprocess-isolated validation host.
func newValidator(cfg *config.Config) *worker.Host {
	return worker.NewHost(&worker.ExecRunner{}, worker.RunConfig{
		ToolchainBin: cfg.Toolchain.Bin,
		MinGap:       cfg.Validation.MinGap,
		AlignTol:     cfg.Validation.AlignTol,
	})
}

// spacingParams maps the configured thresholds onto the geometry checker.
func spacingParams(cfg *config.Config) geom.Params {
	return geom.Params{MinGap: cfg.Validation.MinGap, AlignTol: cfg.Validation.AlignTol}
}

// loopConfig maps the validated config onto the orchestrator's bounds.
// requireConfig has already rejected nil budgets, so the dereferences are
// safe.
func loopConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxCircuitRetries: *cfg.Validation.MaxCircuitRetries,
		MaxSpacingRetries: *cfg.Validation.MaxSpacingRetries,
		Timeout:           cfg.Validation.Timeout(),
		Temperatures:      cfg.Generator.Temperatures,
		TopK:              cfg.Retrieval.TopK,
		Params:            spacingParams(cfg),
	}
}

// promptLibrary returns the template library with the configured override
// directory.
func promptLibrary(cfg *config.Config) *prompt.Library {
	return prompt.NewLibrary(cfg.Prompts.Dir)
}
