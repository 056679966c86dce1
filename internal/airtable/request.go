package airtable

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// MetaResourceKey buckets account-level endpoints that are not scoped to a base.
const MetaResourceKey = "meta"

// QueryParam is one key/value pair of a query string.
type QueryParam struct {
	Key   string
	Value string
}

// Query is an ordered list of query parameters. Keys may repeat (fields[]=a&fields[]=b).
type Query []QueryParam

// Add appends a parameter and returns the extended query.
func (q Query) Add(key, value string) Query {
	return append(q, QueryParam{Key: key, Value: value})
}

// With returns a copy of q with key set to value, replacing any existing entries.
func (q Query) With(key, value string) Query {
	out := make(Query, 0, len(q)+1)
	for _, p := range q {
		if p.Key != key {
			out = append(out, p)
		}
	}
	return append(out, QueryParam{Key: key, Value: value})
}

// Get returns the first value stored under key.
func (q Query) Get(key string) (string, bool) {
	for _, p := range q {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Encode renders the query in insertion order.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// RequestDescriptor is a fully formed remote call. Treat it as immutable once built.
type RequestDescriptor struct {
	Method string
	// Path is relative to the API root, without a leading slash.
	Path  string
	Query Query
	// Body is sent as JSON when non-nil.
	Body json.RawMessage
	// ResourceKey selects the rate-limit bucket, normally the base ID.
	ResourceKey string
}

// NewRequest creates a descriptor for method and path.
func NewRequest(method, path, resourceKey string) RequestDescriptor {
	if resourceKey == "" {
		resourceKey = MetaResourceKey
	}
	return RequestDescriptor{
		Method:      method,
		Path:        strings.TrimLeft(path, "/"),
		ResourceKey: resourceKey,
	}
}

// WithQuery returns a copy with the query replaced.
func (d RequestDescriptor) WithQuery(q Query) RequestDescriptor {
	cp := make(Query, len(q))
	copy(cp, q)
	d.Query = cp
	return d
}

// WithBody returns a copy with the JSON body replaced.
func (d RequestDescriptor) WithBody(body json.RawMessage) RequestDescriptor {
	d.Body = body
	return d
}

// validMethods are the verbs the Airtable API accepts.
var validMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// ValidMethod reports whether m is one of the supported verbs.
func ValidMethod(m string) bool {
	return validMethods[m]
}
