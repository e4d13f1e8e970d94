package barcode

import (
	"strings"

	"labflow/internal/platform/config"
)

// Validator checks sample barcodes against the site's label format before a
// workflow will accept them. Rules are configured per deployment because
// label printers differ between sites.
type Validator struct {
	minLength int
	maxLength int
}

func NewValidator(cfg config.Barcode) *Validator {
	return &Validator{minLength: cfg.MinLength, maxLength: cfg.MaxLength}
}

// IsValid reports whether the barcode is acceptable: non-blank, within the
// configured length window, and restricted to alphanumerics plus '-', '_'
// and '.'.
func (v *Validator) IsValid(code string) bool {
	if strings.TrimSpace(code) == "" {
		return false
	}
	if len(code) < v.minLength || len(code) > v.maxLength {
		return false
	}
	for _, r := range code {
		if !isAllowed(r) {
			return false
		}
	}
	return true
}

func isAllowed(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}
	return false
}
