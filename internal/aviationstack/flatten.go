package aviationstack

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Field is one flattened (dotted key, scalar) pair.
type Field struct {
	Key   string
	Value any
}

// Flatten walks a JSON object in document order and joins nested object keys
// with dots. Nulls stay nil, arrays are kept as raw JSON, numbers become
// float64 and booleans bool. A nested object that is null flattens to a single
// nil field under its own key.
func Flatten(obj gjson.Result) []Field {
	var out []Field
	flattenInto(&out, "", obj)
	return out
}

func flattenInto(out *[]Field, prefix string, obj gjson.Result) {
	obj.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if prefix != "" {
			name = prefix + "." + name
		}
		if value.IsObject() {
			before := len(*out)
			flattenInto(out, name, value)
			if len(*out) == before {
				*out = append(*out, Field{Key: name})
			}
			return true
		}
		*out = append(*out, Field{Key: name, Value: scalar(value)})
		return true
	})
}

func scalar(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return v.Float()
	case gjson.String:
		return v.String()
	default:
		return json.RawMessage(v.Raw)
	}
}
