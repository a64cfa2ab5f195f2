package adapter

// ConfigParser provides type-safe extraction of values from a map[string]any
// adapter configuration.
type ConfigParser struct {
	raw map[string]any
}

// NewConfigParser creates a ConfigParser for the given config map.
func NewConfigParser(config map[string]any) *ConfigParser {
	if config == nil {
		config = make(map[string]any)
	}
	return &ConfigParser{raw: config}
}

// GetString extracts a string field.
// Returns empty string if the field is not found or not a string.
func (p *ConfigParser) GetString(field string) string {
	if v, ok := p.raw[field].(string); ok {
		return v
	}
	return ""
}

// GetStringDefault extracts a string field with a default value.
func (p *ConfigParser) GetStringDefault(field, defaultVal string) string {
	if v, ok := p.raw[field].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

// GetBool extracts a boolean field.
// Returns false if the field is not found or not a boolean.
func (p *ConfigParser) GetBool(field string) bool {
	if v, ok := p.raw[field].(bool); ok {
		return v
	}
	return false
}

// GetBoolDefault extracts a boolean field with a default value.
func (p *ConfigParser) GetBoolDefault(field string, defaultVal bool) bool {
	if v, ok := p.raw[field].(bool); ok {
		return v
	}
	return defaultVal
}

// GetIntDefault extracts an integer field with a default value.
// Handles int, int64, and float64 (JSON numbers decode as float64).
func (p *ConfigParser) GetIntDefault(field string, defaultVal int) int {
	switch v := p.raw[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultVal
	}
}

// GetStringSlice extracts a string array field.
// Non-string elements are silently skipped.
func (p *ConfigParser) GetStringSlice(field string) []string {
	arr, ok := p.raw[field].([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// Has returns true if the field exists in the config (even if nil).
func (p *ConfigParser) Has(field string) bool {
	_, ok := p.raw[field]
	return ok
}

// Raw returns the underlying config map.
func (p *ConfigParser) Raw() map[string]any {
	return p.raw
}
