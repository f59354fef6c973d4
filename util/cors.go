package util

import "strings"

// MakeAllowedOriginValidator builds an origin check for websocket upgrades.
// "*" allows everything, entries match exactly (with or without scheme), and
// a single "*" inside an entry acts as a wildcard, e.g. "https://*.example.com".
func MakeAllowedOriginValidator(allowedOrigins []string) func(origin string) bool {
	for _, o := range allowedOrigins {
		if o == "*" {
			return func(origin string) bool {
				return true
			}
		}
	}

	return func(origin string) bool {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			return false
		}

		originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		for _, allowed := range allowedOrigins {
			allowed = strings.TrimSpace(allowed)

			if allowed == origin || allowed == originHost {
				return true
			}

			if prefix, suffix, ok := strings.Cut(allowed, "*"); ok {
				if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
					return true
				}
			}
		}

		return false
	}
}
