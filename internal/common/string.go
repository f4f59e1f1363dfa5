//nolint:revive // common is an appropriate name for shared utilities package
package common

import "strings"

// ParseKeyValue parses a string in "KEY=VALUE" format like environment variables.
// Returns the key, value, and a boolean indicating successful parsing.
// If the string is not in the correct format or key is empty, returns empty strings and false.
//
// Edge cases:
//   - "=VALUE" (empty key): returns key="", value="", ok=false (invalid)
//   - "KEY=" (empty value): returns key="KEY", value="", ok=true (valid)
//   - "KEY" (no equals): returns key="", value="", ok=false (invalid)
func ParseKeyValue(env string) (key, value string, ok bool) {
	key, value, found := strings.Cut(env, "=")
	if !found || key == "" {
		return "", "", false
	}
	return key, value, true
}
