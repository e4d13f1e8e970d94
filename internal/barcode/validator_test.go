package barcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"labflow/internal/platform/config"
)

func TestValidator_IsValid(t *testing.T) {
	v := NewValidator(config.Barcode{MinLength: 6, MaxLength: 32})

	tests := []struct {
		name string
		code string
		want bool
	}{
		{"typical site barcode", "BC-2026.000134_A", true},
		{"minimum length", "ABC123", true},
		{"maximum length", strings.Repeat("7", 32), true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"too short", "BC123", false},
		{"too long", strings.Repeat("7", 33), false},
		{"embedded space", "BC 123456", false},
		{"illegal punctuation", "BC#123456", false},
		{"non-ascii", "BC12345é", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.IsValid(tt.code))
		})
	}
}
