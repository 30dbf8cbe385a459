package connectors

import "strings"

// sensitivePatterns is the fixed set of substrings that route a config key
// into the secret store instead of the public config.
var sensitivePatterns = []string{
	"key",
	"secret",
	"token",
	"password",
	"credential",
	"cert",
	"private",
	"passphrase",
}

// IsSensitiveKey reports whether a config key names a credential value.
// Matching is a case-insensitive substring check.
func IsSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)

	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}

	return false
}

// Segregate splits a flat configuration map into public config and secrets.
// Segregation is deterministic and idempotent: segregating an already-public
// config yields the same config and an empty secret set.
func Segregate(config map[string]string) (public, secret map[string]string) {
	public = make(map[string]string)
	secret = make(map[string]string)

	for key, value := range config {
		if IsSensitiveKey(key) {
			secret[key] = value
		} else {
			public[key] = value
		}
	}

	return public, secret
}

// Merge combines public config and resolved secrets into the full runtime
// configuration. Secret values win on key collisions.
func Merge(public, secret map[string]string) map[string]string {
	merged := make(map[string]string, len(public)+len(secret))

	for key, value := range public {
		merged[key] = value
	}

	for key, value := range secret {
		merged[key] = value
	}

	return merged
}
