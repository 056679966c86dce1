package tools

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"airtable-mcp-go/internal/airtable"
)

// maxPageSize is the largest page the Airtable API serves.
const maxPageSize = 100

// CatalogTool is a Tool driven entirely by its catalog entry.
type CatalogTool struct {
	spec Spec
}

// NewCatalogTool creates a tool from a validated catalog entry.
func NewCatalogTool(spec Spec) *CatalogTool {
	return &CatalogTool{spec: spec}
}

// Name returns the name of the tool.
func (t *CatalogTool) Name() string {
	return t.spec.Name
}

// Spec returns the catalog entry.
func (t *CatalogTool) Spec() Spec {
	return t.spec
}

// Definition returns the tool definition in MCP format.
func (t *CatalogTool) Definition() Definition {
	properties := make(map[string]any, len(t.spec.Params))
	required := []string{}

	for _, p := range t.spec.Params {
		prop := map[string]any{"description": p.Description}
		switch p.Type {
		case TypeString:
			prop["type"] = "string"
		case TypeBoolean:
			prop["type"] = "boolean"
		case TypeInteger:
			prop["type"] = "integer"
			prop["minimum"] = 0
		case TypeObject:
			prop["type"] = []string{"object", "string"}
		case TypeArray, TypeStringArray, TypeSort:
			prop["type"] = []string{"array", "string"}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != "" {
			prop["default"] = p.Default
		}
		if p.DefaultBase {
			prop["description"] = p.Description + " Defaults to the configured base."
		}
		if t.spec.Batch != nil && t.spec.Batch.Param == p.Name {
			prop["maxItems"] = t.spec.Batch.Max
		}
		properties[p.Name] = prop

		if p.Required && !p.DefaultBase {
			required = append(required, p.Name)
		}
	}

	return Definition{
		Name:        t.spec.Name,
		Description: t.spec.Description,
		InputSchema: map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
		Annotations: map[string]any{
			"title":           title(t.spec.Name),
			"readOnlyHint":    t.spec.Method == http.MethodGet,
			"destructiveHint": t.spec.Method == http.MethodDelete,
			"openWorldHint":   true,
		},
	}
}

// Prepare validates params against the catalog entry and assembles the call.
func (t *CatalogTool) Prepare(params Params, defaults Defaults) (*Call, *airtable.Failure) {
	for name := range params {
		if _, ok := t.spec.Param(name); !ok {
			return nil, airtable.NewInvalidParametersFailure("unknown parameter %q for %s", name, t.spec.Name)
		}
	}

	b := &callBuilder{
		path:     make(map[string]string),
		body:     []byte(`{}`),
		controls: make(map[string]gjson.Result),
	}

	for _, p := range t.spec.Params {
		v, ok := params.lookup(p.Name)
		if p.DefaultBase && defaults.Bases != nil && (!ok || v.Type == gjson.String) {
			if id := defaults.Bases.ResolveBase(v.Str); id != "" {
				v, ok = stringResult(id), true
			}
		}
		if !ok {
			switch {
			case p.Default != "":
				v = stringResult(p.Default)
			case p.Required:
				return nil, airtable.NewInvalidParametersFailure("%s is required", p.Name)
			default:
				continue
			}
		}
		if f := b.add(t.spec, p, v); f != nil {
			return nil, f
		}
	}

	return b.build(t.spec, defaults)
}

type callBuilder struct {
	path     map[string]string
	query    airtable.Query
	body     []byte
	hasBody  bool
	controls map[string]gjson.Result
}

func (b *callBuilder) add(spec Spec, p ParamSpec, v gjson.Result) *airtable.Failure {
	if p.In == InControl {
		b.controls[p.Name] = v
		return nil
	}

	key := p.wireKey()
	switch p.Type {
	case TypeString:
		s, f := decodeString(p, v)
		if f != nil {
			return f
		}
		switch p.In {
		case InPath:
			b.path[p.Name] = s
		case InQuery:
			b.query = b.query.Add(key, s)
		case InBody:
			return b.set(p, key, s)
		}

	case TypeBoolean:
		on, f := decodeBool(p, v)
		if f != nil {
			return f
		}
		switch p.In {
		case InQuery:
			if on {
				b.query = b.query.Add(key, "true")
			}
		case InBody:
			return b.set(p, key, on)
		default:
			return airtable.NewInvalidParametersFailure("%s cannot be used in the path", p.Name)
		}

	case TypeInteger:
		n, f := decodeInt(p, v)
		if f != nil {
			return f
		}
		switch p.In {
		case InPath:
			b.path[p.Name] = strconv.Itoa(n)
		case InQuery:
			b.query = b.query.Add(key, strconv.Itoa(n))
		case InBody:
			return b.set(p, key, n)
		}

	case TypeObject:
		raw, f := decodeObject(p, v)
		if f != nil {
			return f
		}
		return b.setRaw(p, key, raw)

	case TypeArray:
		raw, n, f := decodeArray(p, v)
		if f != nil {
			return f
		}
		if f := checkBatch(spec, p, n); f != nil {
			return f
		}
		return b.setRaw(p, key, raw)

	case TypeStringArray:
		items, f := decodeStringArray(p, v)
		if f != nil {
			return f
		}
		if f := checkBatch(spec, p, len(items)); f != nil {
			return f
		}
		switch p.In {
		case InQuery:
			for _, item := range items {
				b.query = b.query.Add(key, item)
			}
		case InBody:
			return b.set(p, key, items)
		}

	case TypeSort:
		keys, f := decodeSort(p, v)
		if f != nil {
			return f
		}
		for i, k := range keys {
			b.query = b.query.Add(fmt.Sprintf("%s[%d][field]", key, i), k.field)
			if k.direction != "" {
				b.query = b.query.Add(fmt.Sprintf("%s[%d][direction]", key, i), k.direction)
			}
		}
	}
	return nil
}

func (b *callBuilder) set(p ParamSpec, key string, value any) *airtable.Failure {
	out, err := sjson.SetBytes(b.body, gjsonKey(key), value)
	if err != nil {
		return airtable.NewInvalidParametersFailure("%s: %v", p.Name, err)
	}
	b.body = out
	b.hasBody = true
	return nil
}

func (b *callBuilder) setRaw(p ParamSpec, key string, raw []byte) *airtable.Failure {
	if p.In == InQuery {
		b.query = b.query.Add(key, string(raw))
		return nil
	}
	if p.In != InBody {
		return airtable.NewInvalidParametersFailure("%s cannot be used in the path", p.Name)
	}
	out, err := sjson.SetRawBytes(b.body, gjsonKey(key), raw)
	if err != nil {
		return airtable.NewInvalidParametersFailure("%s: %v", p.Name, err)
	}
	b.body = out
	b.hasBody = true
	return nil
}

func (b *callBuilder) build(spec Spec, defaults Defaults) (*Call, *airtable.Failure) {
	path := placeholderRe.ReplaceAllStringFunc(spec.Path, func(m string) string {
		return url.PathEscape(b.path[m[1:len(m)-1]])
	})

	req := airtable.NewRequest(spec.Method, path, b.path[spec.Resource]).WithQuery(b.query)
	if b.hasBody {
		req = req.WithBody(b.body)
	}

	call := &Call{Request: req}
	if spec.Listing == nil {
		return call, nil
	}

	l := spec.Listing
	pr := &airtable.PageRequest{
		Factory:       func() airtable.RequestDescriptor { return req },
		ItemsField:    l.Items,
		TokenField:    airtable.DefaultTokenField,
		PageSizeParam: l.PageSizeQuery,
		PageSize:      defaults.PageSize,
	}
	if pr.PageSize <= 0 || pr.PageSize > maxPageSize {
		pr.PageSize = maxPageSize
	}

	if v, ok := b.controls[l.PageSizeParam]; ok && l.PageSizeParam != "" {
		ps, _ := spec.Param(l.PageSizeParam)
		n, f := decodeInt(ps, v)
		if f != nil {
			return nil, f
		}
		if n < 1 || n > maxPageSize {
			return nil, airtable.NewInvalidParametersFailure("%s must be between 1 and %d", l.PageSizeParam, maxPageSize)
		}
		pr.PageSize = n
	}
	if v, ok := b.controls[l.CapParam]; ok && l.CapParam != "" {
		ps, _ := spec.Param(l.CapParam)
		n, f := decodeInt(ps, v)
		if f != nil {
			return nil, f
		}
		pr.Cap = n
	}
	if v, ok := b.controls[l.OffsetParam]; ok && l.OffsetParam != "" {
		ps, _ := spec.Param(l.OffsetParam)
		token, f := decodeString(ps, v)
		if f != nil {
			return nil, f
		}
		pr.StartToken = token
	}

	call.Listing = pr
	return call, nil
}

func checkBatch(spec Spec, p ParamSpec, n int) *airtable.Failure {
	if spec.Batch == nil || spec.Batch.Param != p.Name {
		return nil
	}
	if n == 0 {
		return airtable.NewInvalidParametersFailure("%s needs at least one item", p.Name)
	}
	if n > spec.Batch.Max {
		return airtable.NewBatchTooLargeFailure(p.Name, n, spec.Batch.Max)
	}
	return nil
}

func stringResult(s string) gjson.Result {
	return gjson.Result{Type: gjson.String, Str: s, Raw: strconv.Quote(s)}
}

// title turns airtable_create_record into "Create Record".
func title(name string) string {
	words := strings.Split(strings.TrimPrefix(name, "airtable_"), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
