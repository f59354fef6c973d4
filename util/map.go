package util

import "time"

func GetMapValue[T any](m map[string]any, key string, defaultValue T) T {
	if m[key] == nil {
		return defaultValue
	}

	if value, ok := m[key].(T); ok {
		return value
	}

	return defaultValue
}

// GetMapInt reads an integer that may have been decoded as any numeric type
// (yaml yields int, json yields float64).
func GetMapInt(m map[string]any, key string, defaultValue int64) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return defaultValue
	}
}

// GetMapSeconds reads a number of seconds as a duration.
func GetMapSeconds(m map[string]any, key string, defaultValue time.Duration) time.Duration {
	if _, ok := m[key]; !ok {
		return defaultValue
	}
	secs := GetMapInt(m, key, -1)
	if secs < 0 {
		return defaultValue
	}
	return time.Duration(secs) * time.Second
}
