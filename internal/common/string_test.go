package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeyValue(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		key   string
		value string
		ok    bool
	}{
		{"plain variable", "CATALOG_DIR=/srv/catalog", "CATALOG_DIR", "/srv/catalog", true},
		{"empty value", "EMPTY=", "EMPTY", "", true},
		{"equals in value", "DSN=postgres://u:p@db/x?sslmode=disable", "DSN", "postgres://u:p@db/x?sslmode=disable", true},
		{"missing equals sign", "INVALID", "", "", false},
		{"empty string", "", "", "", false},
		{"empty key", "=value", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, value, ok := ParseKeyValue(tt.env)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.value, value)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
