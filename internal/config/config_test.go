package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
generator:
  provider: ollama
  model: gemma3
  endpoint: http://localhost:11434
  temperatures: [0.0, 0.3, 0.6]
embedding:
  provider: ollama
  model: embeddinggemma
retrieval:
  examples_dir: examples
  top_k: 3
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 45
  min_gap: 2
  align_tol: 1
toolchain:
  bin: /usr/local/bin/ordc
storage:
  runs_dir: /tmp/ordpilot/runs
  db_path: /tmp/ordpilot/ordpilot.db
serve:
  addr: 127.0.0.1:9000
`

// minimalConfig sets only the required validation bounds.
const minimalConfig = `
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 45
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ordpilot.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func isolateHome(t *testing.T) {
	t.Helper()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", t.TempDir())
	t.Cleanup(func() { os.Setenv("HOME", origHome) })
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Generator.Provider != "ollama" {
		t.Errorf("Generator.Provider = %q, want %q", cfg.Generator.Provider, "ollama")
	}
	if cfg.Generator.Model != "gemma3" {
		t.Errorf("Generator.Model = %q, want %q", cfg.Generator.Model, "gemma3")
	}
	if len(cfg.Generator.Temperatures) != 3 {
		t.Fatalf("len(Temperatures) = %d, want 3", len(cfg.Generator.Temperatures))
	}
	if cfg.Validation.MaxCircuitRetries == nil || *cfg.Validation.MaxCircuitRetries != 3 {
		t.Errorf("MaxCircuitRetries = %v, want 3", cfg.Validation.MaxCircuitRetries)
	}
	if cfg.Validation.MaxSpacingRetries == nil || *cfg.Validation.MaxSpacingRetries != 2 {
		t.Errorf("MaxSpacingRetries = %v, want 2", cfg.Validation.MaxSpacingRetries)
	}
	if cfg.Validation.TimeoutSeconds == nil || *cfg.Validation.TimeoutSeconds != 45 {
		t.Errorf("TimeoutSeconds = %v, want 45", cfg.Validation.TimeoutSeconds)
	}
	if cfg.Toolchain.Bin != "/usr/local/bin/ordc" {
		t.Errorf("Toolchain.Bin = %q", cfg.Toolchain.Bin)
	}
	if cfg.Serve.Addr != "127.0.0.1:9000" {
		t.Errorf("Serve.Addr = %q", cfg.Serve.Addr)
	}
}

func TestDefaultsMerge(t *testing.T) {
	path := writeTestConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Generator.Provider != "ollama" {
		t.Errorf("Generator.Provider = %q, want %q (default)", cfg.Generator.Provider, "ollama")
	}
	if cfg.Generator.Model != "gemma3" {
		t.Errorf("Generator.Model = %q, want %q (default)", cfg.Generator.Model, "gemma3")
	}
	if cfg.Generator.Endpoint != "http://localhost:11434" {
		t.Errorf("Generator.Endpoint = %q", cfg.Generator.Endpoint)
	}
	if cfg.Generator.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("Generator.APIKeyEnv = %q", cfg.Generator.APIKeyEnv)
	}
	if len(cfg.Generator.Temperatures) != 3 || cfg.Generator.Temperatures[0] != 0.0 || cfg.Generator.Temperatures[2] != 0.6 {
		t.Errorf("Generator.Temperatures = %v, want [0 0.3 0.6]", cfg.Generator.Temperatures)
	}
	if cfg.Embedding.Model != "embeddinggemma" {
		t.Errorf("Embedding.Model = %q", cfg.Embedding.Model)
	}
	if cfg.Retrieval.ExamplesDir != "examples" {
		t.Errorf("Retrieval.ExamplesDir = %q", cfg.Retrieval.ExamplesDir)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("Retrieval.TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Validation.MinGap != 2 {
		t.Errorf("Validation.MinGap = %v, want 2", cfg.Validation.MinGap)
	}
	if cfg.Validation.AlignTol != 1 {
		t.Errorf("Validation.AlignTol = %v, want 1", cfg.Validation.AlignTol)
	}
	if cfg.Toolchain.Bin != "ordc" {
		t.Errorf("Toolchain.Bin = %q, want %q", cfg.Toolchain.Bin, "ordc")
	}
	if cfg.Serve.Addr != "127.0.0.1:8321" {
		t.Errorf("Serve.Addr = %q, want %q", cfg.Serve.Addr, "127.0.0.1:8321")
	}
}

func TestExplicitValuesNotOverridden(t *testing.T) {
	yaml := `
generator:
  model: qwen3
retrieval:
  top_k: 5
validation:
  max_circuit_retries: 1
  max_spacing_retries: 1
  timeout_seconds: 10
  min_gap: 4
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Generator.Model != "qwen3" {
		t.Errorf("Generator.Model = %q, want %q (explicit)", cfg.Generator.Model, "qwen3")
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5 (explicit)", cfg.Retrieval.TopK)
	}
	if cfg.Validation.MinGap != 4 {
		t.Errorf("Validation.MinGap = %v, want 4 (explicit)", cfg.Validation.MinGap)
	}
}

func TestGenaiModelDefaults(t *testing.T) {
	yaml := `
generator:
  provider: genai
embedding:
  provider: genai
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Generator.Model != "gemini-3-flash-preview" {
		t.Errorf("Generator.Model = %q, want %q", cfg.Generator.Model, "gemini-3-flash-preview")
	}
	if cfg.Embedding.Model != "gemini-embedding-001" {
		t.Errorf("Embedding.Model = %q, want %q", cfg.Embedding.Model, "gemini-embedding-001")
	}
}

func TestRequiredFieldsGetNoDefaults(t *testing.T) {
	yaml := `
generator:
  model: gemma3
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Validation.MaxCircuitRetries != nil {
		t.Errorf("MaxCircuitRetries = %v, want nil (no default)", *cfg.Validation.MaxCircuitRetries)
	}
	if cfg.Validation.MaxSpacingRetries != nil {
		t.Errorf("MaxSpacingRetries = %v, want nil (no default)", *cfg.Validation.MaxSpacingRetries)
	}
	if cfg.Validation.TimeoutSeconds != nil {
		t.Errorf("TimeoutSeconds = %v, want nil (no default)", *cfg.Validation.TimeoutSeconds)
	}
}

func TestValidateValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for valid config:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
}

func TestValidateMissingCircuitRetries(t *testing.T) {
	yaml := `
validation:
  max_spacing_retries: 2
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "validation.max_circuit_retries" && e.Message == "is required" {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for missing validation.max_circuit_retries")
	}
}

func TestValidateMissingSpacingRetries(t *testing.T) {
	yaml := `
validation:
  max_circuit_retries: 3
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "validation.max_spacing_retries" && e.Message == "is required" {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for missing validation.max_spacing_retries")
	}
}

func TestValidateMissingTimeout(t *testing.T) {
	yaml := `
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "validation.timeout_seconds" && e.Message == "is required" {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for missing validation.timeout_seconds")
	}
}

func TestValidateZeroRetriesAllowed(t *testing.T) {
	yaml := `
validation:
  max_circuit_retries: 0
  max_spacing_retries: 0
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for explicit zero budgets:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
}

func TestValidateNegativeRetries(t *testing.T) {
	yaml := `
validation:
  max_circuit_retries: -1
  max_spacing_retries: 2
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "validation.max_circuit_retries" && strings.Contains(e.Message, ">= 0") {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for negative max_circuit_retries")
	}
}

func TestValidateZeroTimeout(t *testing.T) {
	yaml := `
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 0
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "validation.timeout_seconds" && strings.Contains(e.Message, "> 0") {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for zero timeout_seconds")
	}
}

func TestValidateUnrecognizedProvider(t *testing.T) {
	yaml := `
generator:
  provider: chroma
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "generator.provider" && strings.Contains(e.Message, "unrecognized provider") {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for unrecognized generator provider")
	}
}

func TestValidateTemperatureRange(t *testing.T) {
	yaml := `
generator:
  temperatures: [0.0, 3.5]
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "generator.temperatures[1]" {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for out-of-range temperature")
	}
}

func TestValidateNegativeTopK(t *testing.T) {
	yaml := `
retrieval:
  top_k: -1
validation:
  max_circuit_retries: 3
  max_spacing_retries: 2
  timeout_seconds: 45
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "retrieval.top_k" {
			found = true
		}
	}
	if !found {
		t.Error("expected validation error for negative retrieval.top_k")
	}
}

func TestValidationTimeout(t *testing.T) {
	secs := 45.0
	v := Validation{TimeoutSeconds: &secs}
	if got := v.Timeout(); got != 45*time.Second {
		t.Errorf("Timeout() = %v, want %v", got, 45*time.Second)
	}

	half := 1.5
	v = Validation{TimeoutSeconds: &half}
	if got := v.Timeout(); got != 1500*time.Millisecond {
		t.Errorf("Timeout() = %v, want 1.5s", got)
	}

	if got := (Validation{}).Timeout(); got != 0 {
		t.Errorf("Timeout() on unset = %v, want 0", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTestConfig(t, "not: [valid: yaml: !!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadDefaultNotFound(t *testing.T) {
	// Change to a temp dir so no ordpilot.yaml is found, and point HOME
	// away from any real ~/.ordpilot/config.yaml.
	isolateHome(t)
	orig, _ := os.Getwd()
	dir := t.TempDir()
	os.Chdir(dir)
	defer os.Chdir(orig)

	_, err := LoadDefault()
	if err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestLoadDefaultFromCurrentDir(t *testing.T) {
	isolateHome(t)
	orig, _ := os.Getwd()
	dir := t.TempDir()
	os.Chdir(dir)
	defer os.Chdir(orig)

	os.WriteFile(filepath.Join(dir, "ordpilot.yaml"), []byte(minimalConfig), 0644)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Validation.MaxCircuitRetries == nil || *cfg.Validation.MaxCircuitRetries != 3 {
		t.Errorf("MaxCircuitRetries = %v, want 3", cfg.Validation.MaxCircuitRetries)
	}
}

func TestLoadDefaultFromHomeDir(t *testing.T) {
	isolateHome(t)
	orig, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(orig)

	home, _ := os.UserHomeDir()
	confDir := filepath.Join(home, ".ordpilot")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(minimalConfig), 0644)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Validation.MaxSpacingRetries == nil || *cfg.Validation.MaxSpacingRetries != 2 {
		t.Errorf("MaxSpacingRetries = %v, want 2", cfg.Validation.MaxSpacingRetries)
	}
}
