package config

import "time"

// Config is the top-level ordpilot configuration parsed from YAML.
type Config struct {
	Generator  Generator  `yaml:"generator"`
	Embedding  Embedding  `yaml:"embedding"`
	Retrieval  Retrieval  `yaml:"retrieval"`
	Validation Validation `yaml:"validation"`
	Toolchain  Toolchain  `yaml:"toolchain"`
	Storage    Storage    `yaml:"storage"`
	Serve      Serve      `yaml:"serve"`
	Prompts    Prompts    `yaml:"prompts"`
}

// Generator selects and tunes the code generation model.
type Generator struct {
	// Provider is "ollama" or "genai".
	Provider string `yaml:"provider"`
	// Model names the provider-specific model.
	Model string `yaml:"model"`
	// Endpoint is the Ollama base URL. Ignored by the genai provider.
	Endpoint string `yaml:"endpoint"`
	// APIKeyEnv names the environment variable holding the genai API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// Temperatures is the per-attempt escalation schedule. Attempt N uses
	// the Nth entry; attempts beyond the schedule reuse the last entry.
	Temperatures []float64 `yaml:"temperatures"`
}

// Embedding selects the embedding model behind the example index.
type Embedding struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Retrieval configures where reference examples come from and how many
// are injected into generation prompts.
type Retrieval struct {
	ExamplesDir string `yaml:"examples_dir"`
	TopK        int    `yaml:"top_k"`
	// IndexPath overrides the stored index location. Empty uses the
	// default under ~/.ordpilot.
	IndexPath string `yaml:"index_path"`
}

// Validation bounds the generation loop and the spacing check.
//
// MaxCircuitRetries, MaxSpacingRetries and TimeoutSeconds are required
// and carry no defaults: a config that leaves any of them unset is
// rejected by Validate rather than silently given a budget.
type Validation struct {
	MaxCircuitRetries *int     `yaml:"max_circuit_retries"`
	MaxSpacingRetries *int     `yaml:"max_spacing_retries"`
	TimeoutSeconds    *float64 `yaml:"timeout_seconds"`
	MinGap            float64  `yaml:"min_gap"`
	AlignTol          float64  `yaml:"align_tol"`
}

// Timeout returns TimeoutSeconds as a duration, or zero when unset.
func (v Validation) Timeout() time.Duration {
	if v.TimeoutSeconds == nil {
		return 0
	}
	return time.Duration(*v.TimeoutSeconds * float64(time.Second))
}

// Toolchain locates the external ORD toolchain binary.
type Toolchain struct {
	Bin string `yaml:"bin"`
}

// Storage locates run artifacts and the event database. Empty paths use
// the defaults under ~/.ordpilot.
type Storage struct {
	RunsDir string `yaml:"runs_dir"`
	DBPath  string `yaml:"db_path"`
}

// Serve configures the dashboard server.
type Serve struct {
	Addr string `yaml:"addr"`
}

// Prompts configures template resolution.
type Prompts struct {
	// Dir is searched for template overrides before ~/.ordpilot/templates
	// and the built-in templates.
	Dir string `yaml:"dir"`
}
