package automation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// RenderString replaces every {{path}} in tpl with the value found at that
// dotted path in data. Missing values render as "".
func RenderString(tpl string, data map[string]interface{}) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := Lookup(data, path)
		if !ok {
			return ""
		}
		return stringify(v)
	})
}

// Render walks maps and slices and renders every string inside v.
func Render(v interface{}, data map[string]interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return RenderString(t, data)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = Render(val, data)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Render(val, data)
		}
		return out
	default:
		return v
	}
}

// RenderConfig renders every value of an action config.
func RenderConfig(cfg, data map[string]interface{}) map[string]interface{} {
	out, _ := Render(cfg, data).(map[string]interface{})
	if out == nil {
		out = map[string]interface{}{}
	}
	return out
}

// Lookup resolves a dotted path such as "fields.email" in data.
func Lookup(data map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool, int, int64:
		return fmt.Sprint(t)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
