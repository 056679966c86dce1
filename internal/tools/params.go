package tools

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"airtable-mcp-go/internal/airtable"
)

// Params are the raw arguments of a tool call. A value may be a JSON scalar,
// a JSON object or array, or a string holding JSON-encoded text.
type Params map[string]json.RawMessage

// ParseParams decodes the arguments object of a tool call. Empty input and
// null yield no parameters.
func ParseParams(raw []byte) (Params, *airtable.Failure) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Params{}, nil
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, airtable.NewInvalidParametersFailure("arguments must be a JSON object")
	}
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, airtable.NewInvalidParametersFailure("arguments must be a JSON object: %v", err)
	}
	return p, nil
}

// StringParams builds Params from plain strings.
func StringParams(values map[string]string) Params {
	p := make(Params, len(values))
	for k, v := range values {
		b, _ := json.Marshal(v)
		p[k] = b
	}
	return p
}

// lookup returns the value of name, treating absent, null and blank strings as missing.
func (p Params) lookup(name string) (gjson.Result, bool) {
	raw, ok := p[name]
	if !ok {
		return gjson.Result{}, false
	}
	v := gjson.ParseBytes(raw)
	switch v.Type {
	case gjson.Null:
		return v, false
	case gjson.String:
		if strings.TrimSpace(v.Str) == "" {
			return v, false
		}
	}
	return v, true
}

// decodeString accepts a JSON string or number.
func decodeString(spec ParamSpec, v gjson.Result) (string, *airtable.Failure) {
	var s string
	switch v.Type {
	case gjson.String:
		s = strings.TrimSpace(v.Str)
	case gjson.Number:
		s = v.Raw
	default:
		return "", airtable.NewInvalidParametersFailure("%s must be a string", spec.Name)
	}
	if len(spec.Enum) > 0 {
		for _, allowed := range spec.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return "", airtable.NewInvalidParametersFailure("%s must be one of %s", spec.Name, strings.Join(spec.Enum, ", "))
	}
	return s, nil
}

// decodeBool accepts a JSON boolean or the strings "true" and "false".
func decodeBool(spec ParamSpec, v gjson.Result) (bool, *airtable.Failure) {
	switch v.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.String:
		if b, err := strconv.ParseBool(strings.TrimSpace(v.Str)); err == nil {
			return b, nil
		}
	}
	return false, airtable.NewInvalidParametersFailure("%s must be a boolean", spec.Name)
}

// decodeInt accepts a JSON integer or a string holding one.
func decodeInt(spec ParamSpec, v gjson.Result) (int, *airtable.Failure) {
	var text string
	switch v.Type {
	case gjson.Number:
		text = v.Raw
	case gjson.String:
		text = strings.TrimSpace(v.Str)
	default:
		return 0, airtable.NewInvalidParametersFailure("%s must be an integer", spec.Name)
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, airtable.NewInvalidParametersFailure("%s must be an integer", spec.Name)
	}
	if n < 0 {
		return 0, airtable.NewInvalidParametersFailure("%s must not be negative", spec.Name)
	}
	return n, nil
}

// decodeJSON unwraps a JSON-encoded string into its document.
func decodeJSON(spec ParamSpec, v gjson.Result) (gjson.Result, *airtable.Failure) {
	if v.Type != gjson.String {
		return v, nil
	}
	text := strings.TrimSpace(v.Str)
	if !gjson.Valid(text) {
		return gjson.Result{}, airtable.NewInvalidParametersFailure("invalid JSON format for %s", spec.Name)
	}
	return gjson.Parse(text), nil
}

func decodeObject(spec ParamSpec, v gjson.Result) (json.RawMessage, *airtable.Failure) {
	doc, f := decodeJSON(spec, v)
	if f != nil {
		return nil, f
	}
	if !doc.IsObject() {
		return nil, airtable.NewInvalidParametersFailure("%s must be a JSON object", spec.Name)
	}
	return json.RawMessage(doc.Raw), nil
}

// decodeArray returns the array document and its length, checking item_requires.
func decodeArray(spec ParamSpec, v gjson.Result) (json.RawMessage, int, *airtable.Failure) {
	doc, f := decodeJSON(spec, v)
	if f != nil {
		return nil, 0, f
	}
	if !doc.IsArray() {
		return nil, 0, airtable.NewInvalidParametersFailure("%s must be a JSON array", spec.Name)
	}
	items := doc.Array()
	for i, item := range items {
		if len(spec.ItemRequires) == 0 {
			break
		}
		if !item.IsObject() {
			return nil, 0, airtable.NewInvalidParametersFailure("%s[%d] must be an object", spec.Name, i)
		}
		for _, key := range spec.ItemRequires {
			if !item.Get(gjsonKey(key)).Exists() {
				return nil, 0, airtable.NewInvalidParametersFailure("%s[%d] must have %q", spec.Name, i, key)
			}
		}
	}
	return json.RawMessage(doc.Raw), len(items), nil
}

func decodeStringArray(spec ParamSpec, v gjson.Result) ([]string, *airtable.Failure) {
	doc, f := decodeJSON(spec, v)
	if f != nil {
		return nil, f
	}
	if !doc.IsArray() {
		return nil, airtable.NewInvalidParametersFailure("%s must be a JSON array of strings", spec.Name)
	}
	var out []string
	for i, item := range doc.Array() {
		if item.Type != gjson.String || strings.TrimSpace(item.Str) == "" {
			return nil, airtable.NewInvalidParametersFailure("%s[%d] must be a non-empty string", spec.Name, i)
		}
		out = append(out, strings.TrimSpace(item.Str))
	}
	return out, nil
}

type sortKey struct {
	field     string
	direction string
}

func decodeSort(spec ParamSpec, v gjson.Result) ([]sortKey, *airtable.Failure) {
	doc, f := decodeJSON(spec, v)
	if f != nil {
		return nil, f
	}
	if !doc.IsArray() {
		return nil, airtable.NewInvalidParametersFailure("%s must be a JSON array", spec.Name)
	}
	var out []sortKey
	for i, item := range doc.Array() {
		field := strings.TrimSpace(item.Get("field").String())
		if !item.IsObject() || field == "" {
			return nil, airtable.NewInvalidParametersFailure("%s[%d] must be an object with a field", spec.Name, i)
		}
		dir := strings.ToLower(strings.TrimSpace(item.Get("direction").String()))
		if dir != "" && dir != "asc" && dir != "desc" {
			return nil, airtable.NewInvalidParametersFailure("%s[%d].direction must be asc or desc", spec.Name, i)
		}
		out = append(out, sortKey{field: field, direction: dir})
	}
	return out, nil
}

// gjsonKey escapes characters gjson treats as path syntax.
func gjsonKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
