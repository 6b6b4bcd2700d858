package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueType describes the declared type of a workflow node input or output.
type ValueType string

const (
	ValueTypeAny          ValueType = "any"
	ValueTypeString       ValueType = "string"
	ValueTypeNumber       ValueType = "number"
	ValueTypeBoolean      ValueType = "boolean"
	ValueTypeObject       ValueType = "object"
	ValueTypeArrayString  ValueType = "arrayString"
	ValueTypeArrayNumber  ValueType = "arrayNumber"
	ValueTypeArrayObject  ValueType = "arrayObject"
	ValueTypeArrayAny     ValueType = "arrayAny"
	ValueTypeChatHistory  ValueType = "chatHistory"
	ValueTypeDatasetQuote ValueType = "datasetQuote"
)

// IsArray reports whether the type is one of the array types.
func (t ValueType) IsArray() bool {
	return strings.HasPrefix(string(t), "array") || t == ValueTypeDatasetQuote
}

// looksLikeJSON reports whether a string is plausibly a JSON object or array.
func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || s == "true" || s == "false" {
		return false
	}
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// FormatValue coerces a value to the declared type. Values that already
// match the target type pass through untouched; strings holding JSON are
// parsed for object/array targets; incompatible values degrade to the
// type's zero-ish default rather than failing the node.
func FormatValue(value any, t ValueType) any {
	if value == nil {
		return nil
	}
	if t == "" || t == ValueTypeAny {
		return value
	}

	switch t {
	case ValueTypeString:
		if s, ok := value.(string); ok {
			return s
		}
		if b, err := json.Marshal(value); err == nil {
			switch value.(type) {
			case map[string]any, []any:
				return string(b)
			}
		}
		return ValueToString(value)

	case ValueTypeNumber:
		switch v := value.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case json.Number:
			f, _ := v.Float64()
			return f
		case string:
			if v == "" {
				return nil
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			return nil
		case bool:
			if v {
				return float64(1)
			}
			return float64(0)
		}
		return nil

	case ValueTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true")
		case float64:
			return v != 0
		case int:
			return v != 0
		}
		return false

	case ValueTypeObject:
		switch v := value.(type) {
		case map[string]any:
			return v
		case string:
			if looksLikeJSON(v) {
				var out map[string]any
				if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &out); err == nil {
					return out
				}
			}
		}
		return map[string]any{}

	case ValueTypeChatHistory:
		switch v := value.(type) {
		case []any, float64, int:
			return v
		}
		return []any{}
	}

	if t.IsArray() {
		switch v := value.(type) {
		case []any:
			return v
		case string:
			if looksLikeJSON(v) {
				var out []any
				if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &out); err == nil {
					return out
				}
			}
			if t == ValueTypeDatasetQuote {
				return []any{}
			}
			return []any{v}
		default:
			if t == ValueTypeDatasetQuote {
				return []any{}
			}
			return []any{value}
		}
	}

	return value
}

// ValueToString renders a value as the text a template variable expands to.
func ValueToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	}
	if b, err := json.Marshal(value); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", value)
}
