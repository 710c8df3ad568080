package validate

import "strings"

// MissingRequired checks the payload against the required field names
// and returns every violated name, in the order the names were given.
// A field is missing when it is absent, nil, a whitespace-only string,
// or an array with zero elements. Extra payload keys are never an error.
func MissingRequired(payload map[string]interface{}, required []string) []string {
	var missing []string
	for _, name := range required {
		value, ok := payload[name]
		if !ok || IsEmpty(value) {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsEmpty reports whether a submitted value counts as not provided.
// Numbers and booleans are always present; arrays are present when they
// have at least one element.
func IsEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// ApplyMapping renames payload keys according to the config's ordered
// external-to-internal mapping. Unmapped keys pass through unchanged;
// a mapped source key replaces the destination key if both exist.
func ApplyMapping(payload map[string]interface{}, mapping map[string]string) map[string]interface{} {
	if len(mapping) == 0 {
		return payload
	}
	mapped := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if _, isSource := mapping[key]; isSource {
			continue
		}
		mapped[key] = value
	}
	// Mapped values win over a passthrough key of the same name.
	for from, to := range mapping {
		if value, ok := payload[from]; ok {
			mapped[to] = value
		}
	}
	return mapped
}
