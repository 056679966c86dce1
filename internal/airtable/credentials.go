package airtable

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultBaseURL is the Airtable REST API root.
const DefaultBaseURL = "https://api.airtable.com/v0"

// ErrMissingAPIKey is returned when no credential is configured.
var ErrMissingAPIKey = errors.New("airtable API key is required")

// Credentials holds the static API credential and target defaults.
type Credentials struct {
	apiKey        string
	defaultBaseID string
	baseURL       string
}

// NewCredentials validates and stores the credential. An empty baseURL selects
// DefaultBaseURL.
func NewCredentials(apiKey, defaultBaseID, baseURL string) (*Credentials, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Credentials{
		apiKey:        apiKey,
		defaultBaseID: strings.TrimSpace(defaultBaseID),
		baseURL:       baseURL,
	}, nil
}

// Authorization returns the value of the Authorization header.
func (c *Credentials) Authorization() string {
	return "Bearer " + c.apiKey
}

// BaseURL returns the API root without a trailing slash.
func (c *Credentials) BaseURL() string {
	return c.baseURL
}

// ResolveBase returns the trimmed id if set, otherwise the default base,
// which may be empty.
func (c *Credentials) ResolveBase(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return c.defaultBaseID
}

// String never reveals the key.
func (c *Credentials) String() string {
	return "Credentials{baseURL=" + c.baseURL + ", defaultBase=" + c.defaultBaseID + ", apiKey=***}"
}
