package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses an ordpilot configuration from the given YAML file
// path. After parsing, it fills in defaults for optional fields; the required
// validation bounds never receive defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./ordpilot.yaml, ~/.ordpilot/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"ordpilot.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".ordpilot", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no ordpilot config found (searched: %v)", candidates)
}

// applyDefaults fills in optional fields that were left unset.
// MaxCircuitRetries, MaxSpacingRetries and TimeoutSeconds never receive
// defaults here; Validate rejects a config that omits them.
func applyDefaults(cfg *Config) {
	g := &cfg.Generator
	if g.Provider == "" {
		g.Provider = "ollama"
	}
	if g.Model == "" {
		switch g.Provider {
		case "genai":
			g.Model = "gemini-3-flash-preview"
		default:
			g.Model = "gemma3"
		}
	}
	if g.Endpoint == "" {
		g.Endpoint = "http://localhost:11434"
	}
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "GEMINI_API_KEY"
	}
	if len(g.Temperatures) == 0 {
		g.Temperatures = []float64{0.0, 0.3, 0.6}
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = "ollama"
	}
	if e.Model == "" {
		switch e.Provider {
		case "genai":
			e.Model = "gemini-embedding-001"
		default:
			e.Model = "embeddinggemma"
		}
	}
	if e.Endpoint == "" {
		e.Endpoint = "http://localhost:11434"
	}
	if e.APIKeyEnv == "" {
		e.APIKeyEnv = "GEMINI_API_KEY"
	}

	r := &cfg.Retrieval
	if r.ExamplesDir == "" {
		r.ExamplesDir = "examples"
	}
	if r.TopK == 0 {
		r.TopK = 3
	}

	v := &cfg.Validation
	if v.MinGap == 0 {
		v.MinGap = 2
	}
	if v.AlignTol == 0 {
		v.AlignTol = 1
	}

	if cfg.Toolchain.Bin == "" {
		cfg.Toolchain.Bin = "ordc"
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = "127.0.0.1:8321"
	}
}
