package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedProviders is the set of valid model provider names.
var recognizedProviders = map[string]bool{
	"ollama": true,
	"genai":  true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	v := cfg.Validation

	// Required fields
	if v.MaxCircuitRetries == nil {
		errs = append(errs, ValidationError{Field: "validation.max_circuit_retries", Message: "is required"})
	} else if *v.MaxCircuitRetries < 0 {
		errs = append(errs, ValidationError{Field: "validation.max_circuit_retries", Message: "must be >= 0"})
	}
	if v.MaxSpacingRetries == nil {
		errs = append(errs, ValidationError{Field: "validation.max_spacing_retries", Message: "is required"})
	} else if *v.MaxSpacingRetries < 0 {
		errs = append(errs, ValidationError{Field: "validation.max_spacing_retries", Message: "must be >= 0"})
	}
	if v.TimeoutSeconds == nil {
		errs = append(errs, ValidationError{Field: "validation.timeout_seconds", Message: "is required"})
	} else if *v.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "validation.timeout_seconds", Message: "must be > 0"})
	}

	if v.MinGap < 0 {
		errs = append(errs, ValidationError{Field: "validation.min_gap", Message: "must be >= 0"})
	}
	if v.AlignTol < 0 {
		errs = append(errs, ValidationError{Field: "validation.align_tol", Message: "must be >= 0"})
	}

	validateProvider("generator.provider", cfg.Generator.Provider, &errs)
	validateProvider("embedding.provider", cfg.Embedding.Provider, &errs)

	for i, t := range cfg.Generator.Temperatures {
		if t < 0 || t > 2 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("generator.temperatures[%d]", i),
				Message: fmt.Sprintf("%v is outside the range [0, 2]", t),
			})
		}
	}

	if cfg.Retrieval.TopK < 0 {
		errs = append(errs, ValidationError{Field: "retrieval.top_k", Message: "must be >= 0"})
	}

	return errs
}

// validateProvider checks that a provider name is one of the recognized
// backends. Empty is allowed for hand-built configs; Load fills it in.
func validateProvider(field, provider string, errs *[]ValidationError) {
	if provider == "" || recognizedProviders[provider] {
		return
	}
	*errs = append(*errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("unrecognized provider %q (expected \"ollama\" or \"genai\")", provider),
	})
}
