package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Masked replaces a secret value in output.
const Masked = "********"

// secretSuffixes mark config keys whose values are credentials.
var secretSuffixes = []string{"token", "api_key", "secret", "password", "dsn"}

var (
	// credential assignments and bearer headers inside free text
	assignmentPattern = regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password|bearer)(["']?\s*[=:\s]\s*["']?)([^\s"',}]+)`)
	// OpenAI style keys
	openAIKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`)
	// userinfo in connection strings
	urlPasswordPattern = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)

	symbolPattern     = regexp.MustCompile(`^[A-Z][A-Z0-9]{2,11}$`)
	settingKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)
)

// IsSecretKey reports whether a dotted config key holds a credential.
func IsSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// Redact hides v when key holds a credential. Empty credentials stay empty
// so an unset value is still visible as unset.
func Redact(key string, v any) any {
	if !IsSecretKey(key) {
		return v
	}
	if fmt.Sprint(v) == "" {
		return ""
	}
	return Masked
}

// MaskString masks credentials embedded in free text such as venue error
// bodies.
func MaskString(s string) string {
	s = assignmentPattern.ReplaceAllString(s, "${1}${2}"+Masked)
	s = openAIKeyPattern.ReplaceAllString(s, Masked)
	return urlPasswordPattern.ReplaceAllString(s, "${1}"+Masked+"${3}")
}

// ValidateSymbol checks an instrument symbol such as EURUSD or XAUUSD.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol %q", symbol)
	}
	return nil
}

// ValidateSettingKey checks a dotted config key such as risk.max_lot.
func ValidateSettingKey(key string) error {
	if !settingKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid setting key %q", key)
	}
	return nil
}
