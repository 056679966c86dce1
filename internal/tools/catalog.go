package tools

import (
	_ "embed"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"airtable-mcp-go/internal/airtable"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ParamType is the accepted shape of a tool parameter.
type ParamType string

// Parameter types
const (
	TypeString      ParamType = "string"
	TypeBoolean     ParamType = "boolean"
	TypeInteger     ParamType = "integer"
	TypeObject      ParamType = "object"
	TypeArray       ParamType = "array"
	TypeStringArray ParamType = "string_array"
	TypeSort        ParamType = "sort"
)

// Location says where a decoded parameter goes in the request.
type Location string

// Parameter locations
const (
	InPath    Location = "path"
	InQuery   Location = "query"
	InBody    Location = "body"
	InControl Location = "control"
)

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	Name        string    `yaml:"name"`
	Type        ParamType `yaml:"type"`
	In          Location  `yaml:"in"`
	Key         string    `yaml:"key"`
	Required    bool      `yaml:"required"`
	DefaultBase bool      `yaml:"default_base"`
	Default     string    `yaml:"default"`
	Enum        []string  `yaml:"enum"`
	// ItemRequires lists keys every element of a JSON array parameter must carry.
	ItemRequires []string `yaml:"item_requires"`
	Description  string   `yaml:"description"`
}

// wireKey is the query or body key, defaulting to the parameter name.
func (p ParamSpec) wireKey() string {
	if p.Key != "" {
		return p.Key
	}
	return p.Name
}

// ListingSpec marks a tool as a paginated listing.
type ListingSpec struct {
	Items string `yaml:"items"`
	// CapParam names the parameter holding the maximum number of items.
	CapParam string `yaml:"cap_param"`
	// PageSizeQuery is the query key sent to the remote; PageSizeParam the
	// parameter that overrides the configured page size.
	PageSizeQuery string `yaml:"page_size_query"`
	PageSizeParam string `yaml:"page_size_param"`
	OffsetParam   string `yaml:"offset_param"`
}

// BatchSpec bounds the number of items a bulk mutation may carry.
type BatchSpec struct {
	Param string `yaml:"param"`
	Max   int    `yaml:"max"`
}

// Spec is the catalog entry of one tool.
type Spec struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Method      string       `yaml:"method"`
	Path        string       `yaml:"path"`
	Resource    string       `yaml:"resource"`
	Listing     *ListingSpec `yaml:"listing"`
	Batch       *BatchSpec   `yaml:"batch"`
	Params      []ParamSpec  `yaml:"params"`
}

// Param returns the parameter declared under name.
func (s *Spec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Catalog is the decoded catalog file.
type Catalog struct {
	Tools []Spec `yaml:"tools"`
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// LoadCatalog decodes and validates the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode tool catalog")
	}
	if len(c.Tools) == 0 {
		return nil, errors.New("tool catalog is empty")
	}

	seen := make(map[string]bool, len(c.Tools))
	for i := range c.Tools {
		s := &c.Tools[i]
		if seen[s.Name] {
			return nil, errors.Newf("duplicate tool %q", s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return nil, errors.Wrapf(err, "tool %q", s.Name)
		}
	}
	return &c, nil
}

func (s *Spec) validate() error {
	if s.Name == "" {
		return errors.New("missing name")
	}
	s.Method = strings.ToUpper(s.Method)
	if !airtable.ValidMethod(s.Method) {
		return errors.Newf("unsupported method %q", s.Method)
	}
	if s.Path == "" {
		return errors.New("missing path")
	}

	names := make(map[string]ParamSpec, len(s.Params))
	for _, p := range s.Params {
		if _, dup := names[p.Name]; dup {
			return errors.Newf("duplicate parameter %q", p.Name)
		}
		switch p.Type {
		case TypeString, TypeBoolean, TypeInteger, TypeObject, TypeArray, TypeStringArray, TypeSort:
		default:
			return errors.Newf("parameter %q has unknown type %q", p.Name, p.Type)
		}
		switch p.In {
		case InPath, InQuery, InBody, InControl:
		default:
			return errors.Newf("parameter %q has unknown location %q", p.Name, p.In)
		}
		names[p.Name] = p
	}

	for _, m := range placeholderRe.FindAllStringSubmatch(s.Path, -1) {
		p, ok := names[m[1]]
		if !ok || p.In != InPath {
			return errors.Newf("path placeholder {%s} is not a path parameter", m[1])
		}
	}
	for _, p := range s.Params {
		if p.In == InPath && !strings.Contains(s.Path, "{"+p.Name+"}") {
			return errors.Newf("path parameter %q has no placeholder", p.Name)
		}
	}

	if s.Resource != "" {
		if p, ok := names[s.Resource]; !ok || p.In != InPath {
			return errors.Newf("resource %q is not a path parameter", s.Resource)
		}
	}

	if s.Batch != nil {
		p, ok := names[s.Batch.Param]
		if !ok || (p.Type != TypeArray && p.Type != TypeStringArray) {
			return errors.Newf("batch parameter %q must be an array parameter", s.Batch.Param)
		}
		if s.Batch.Max <= 0 {
			return errors.New("batch max must be positive")
		}
	}

	if l := s.Listing; l != nil {
		if l.Items == "" {
			return errors.New("listing needs an items field")
		}
		for _, ref := range []string{l.CapParam, l.PageSizeParam, l.OffsetParam} {
			if ref == "" {
				continue
			}
			if p, ok := names[ref]; !ok || p.In != InControl {
				return errors.Newf("listing parameter %q must be a control parameter", ref)
			}
		}
	}
	return nil
}
