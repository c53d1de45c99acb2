package config

// BoolOr returns the configured value of an optional flag, or def when the
// flag was left out of the config file.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// SetThen returns value unless it is the zero value, then defaultValue.
func SetThen[T comparable](value T, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}
