package registry

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/arunksingh16/mcp/mcp"
)

// validateArgs checks raw call arguments against a declarative input schema:
// required properties must be present, known properties must match their
// declared type and enum, and unknown properties are rejected unless the
// schema allows them. Absent arguments validate as an empty object.
func validateArgs(schema mcp.ToolInputSchema, raw json.RawMessage) error {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("arguments must be an object: %v", err)
		}
	}
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required property %q", name)
		}
	}
	for name, val := range args {
		prop, known := schema.Properties[name]
		if !known {
			if schema.AdditionalProperties {
				continue
			}
			return fmt.Errorf("unknown property %q", name)
		}
		if err := validateValue(name, prop, val); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, prop mcp.SchemaProperty, val any) error {
	if val == nil {
		return fmt.Errorf("property %q must not be null", name)
	}
	switch prop.Type {
	case "":
		// untyped property, accept anything
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("property %q must be a string", name)
		}
	case "number":
		if _, ok := val.(float64); !ok {
			return fmt.Errorf("property %q must be a number", name)
		}
	case "integer":
		f, ok := val.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("property %q must be an integer", name)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("property %q must be a boolean", name)
		}
	case "array":
		items, ok := val.([]any)
		if !ok {
			return fmt.Errorf("property %q must be an array", name)
		}
		if prop.Items != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", name, i), *prop.Items, item); err != nil {
					return err
				}
			}
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("property %q must be an object", name)
		}
	default:
		return fmt.Errorf("property %q has unsupported schema type %q", name, prop.Type)
	}
	if len(prop.Enum) > 0 && !enumContains(prop.Enum, val) {
		return fmt.Errorf("property %q must be one of %v", name, prop.Enum)
	}
	return nil
}

func enumContains(enum []any, val any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, val) {
			return true
		}
		// JSON numbers decode as float64; enum literals reflected from
		// struct tags may be ints.
		if cf, ok := toFloat(candidate); ok {
			if vf, ok := toFloat(val); ok && cf == vf {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
