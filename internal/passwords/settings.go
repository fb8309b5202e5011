package passwords

import "github.com/planetterp/planetterp/internal/config"

// ValidatorsFromSettings builds the validators listed in the settings.
func ValidatorsFromSettings(cfgs []config.PasswordValidator) (Validators, error) {
	out := make([]ValidatorConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, ValidatorConfig{
			Name:           cfg.Name,
			MinLength:      cfg.MinLength,
			MaxSimilarity:  cfg.MaxSimilarity,
			UserAttributes: cfg.UserAttributes,
		})
	}
	return NewValidators(out)
}
