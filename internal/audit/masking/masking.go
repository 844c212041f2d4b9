package masking

import "strings"

const maskToken = "****"

// sensitiveKeys never reach audit metadata in clear text.
var sensitiveKeys = map[string]struct{}{
	"token":      {},
	"token_hash": {},
	"secret":     {},
	"password":   {},
}

// MaskSecret redacts a value but keeps the last four characters for correlation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 8 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskMetadata returns a copy with sensitive string values masked, recursing into maps.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[key] = MaskMetadata(cast)
		case string:
			if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
				out[key] = MaskSecret(cast)
			} else {
				out[key] = cast
			}
		default:
			out[key] = value
		}
	}
	return out
}
