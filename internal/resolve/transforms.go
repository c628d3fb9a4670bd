package resolve

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transform applies a transform chain to a resolved value. Chains are
// separated by commas or pipes: "json_extract:.password|trim".
func Transform(value, chain string) (string, error) {
	transforms := strings.Split(chain, ",")
	if len(transforms) == 1 {
		transforms = strings.Split(chain, "|")
	}

	result := value
	for _, t := range transforms {
		t = strings.TrimSpace(t)
		var err error
		result, err = applyTransform(result, t)
		if err != nil {
			return "", fmt.Errorf("transform '%s' failed: %w", t, err)
		}
	}

	return result, nil
}

func applyTransform(value, transform string) (string, error) {
	switch {
	case transform == "trim":
		return strings.TrimSpace(value), nil

	case transform == "multiline_to_single":
		return strings.ReplaceAll(strings.ReplaceAll(value, "\n", "\\n"), "\r", ""), nil

	case strings.HasPrefix(transform, "json_extract:"):
		path := strings.TrimPrefix(transform, "json_extract:")
		return extractJSONPath(value, path)

	case strings.HasPrefix(transform, "yaml_extract:"):
		path := strings.TrimPrefix(transform, "yaml_extract:")
		return extractYAMLPath(value, path)

	case transform == "base64_decode":
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", fmt.Errorf("base64 decode failed: %w", err)
		}
		return string(decoded), nil

	case transform == "base64_encode":
		return base64.StdEncoding.EncodeToString([]byte(value)), nil

	case strings.HasPrefix(transform, "replace:"):
		parts := strings.SplitN(strings.TrimPrefix(transform, "replace:"), ":", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("replace transform requires format 'replace:from:to'")
		}
		return strings.ReplaceAll(value, parts[0], parts[1]), nil

	default:
		return "", fmt.Errorf("unknown transform: %s", transform)
	}
}

// extractJSONPath extracts a value from JSON using a dotted path like
// ".field" or ".nested.field".
func extractJSONPath(jsonStr, path string) (string, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return walkPath(data, path, "JSON")
}

// extractYAMLPath extracts a value from YAML using a dotted path.
func extractYAMLPath(yamlStr, path string) (string, error) {
	var data interface{}
	if err := yaml.Unmarshal([]byte(yamlStr), &data); err != nil {
		return "", fmt.Errorf("invalid YAML: %w", err)
	}
	return walkPath(data, path, "YAML")
}

func walkPath(data interface{}, path, format string) (string, error) {
	if !strings.HasPrefix(path, ".") {
		return "", fmt.Errorf("%s path must start with '.'", format)
	}

	current := data
	for _, part := range strings.Split(strings.TrimPrefix(path, "."), ".") {
		if part == "" {
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("cannot navigate into non-object at path '%s'", part)
		}
		val, exists := obj[part]
		if !exists {
			return "", fmt.Errorf("field '%s' not found in %s", part, format)
		}
		current = val
	}

	switch v := current.(type) {
	case string:
		return v, nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	case nil:
		return "", nil
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}
		return string(bytes), nil
	}
}
