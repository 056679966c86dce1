package airtable

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPInvokerSendsAuthenticatedRequest(t *testing.T) {
	var (
		gotAuth, gotCT, gotPath, gotQuery, gotMethod string
		gotBody                                      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	creds, err := NewCredentials("patSecret", "appDefault", srv.URL+"/v0/")
	require.NoError(t, err)
	inv := NewHTTPInvoker(creds, srv.Client(), "")

	req := NewRequest(http.MethodPatch, "/appA/Tasks", "appA").
		WithQuery(Query{}.Add("fields[]", "Name").Add("fields[]", "Status").Add("view", "Grid view")).
		WithBody([]byte(`{"records":[{"id":"rec1","fields":{"Status":"Done"}}]}`))

	resp, err := inv.Invoke(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"records":[]}`, string(resp.Body))
	assert.Equal(t, "Bearer patSecret", gotAuth)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/v0/appA/Tasks", gotPath)
	assert.Equal(t, "fields%5B%5D=Name&fields%5B%5D=Status&view=Grid+view", gotQuery)
	assert.JSONEq(t, `{"records":[{"id":"rec1","fields":{"Status":"Done"}}]}`, string(gotBody))
}

func TestHTTPInvokerReturnsErrorStatusesAsResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"error":"RATE_LIMIT_REACHED"}]}`))
	}))
	defer srv.Close()

	creds, err := NewCredentials("key", "", srv.URL)
	require.NoError(t, err)
	inv := NewHTTPInvoker(creds, srv.Client(), "test-agent")

	resp, err := inv.Invoke(context.Background(), NewRequest(http.MethodGet, "meta/bases", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestHTTPInvokerRejectsUnsupportedMethod(t *testing.T) {
	creds, err := NewCredentials("key", "", "http://127.0.0.1:1")
	require.NoError(t, err)
	inv := NewHTTPInvoker(creds, nil, "")

	_, err = inv.Invoke(context.Background(), NewRequest("TRACE", "appA/Tasks", "appA"))
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Temporary)
}

func TestHTTPInvokerNetworkErrorIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	creds, err := NewCredentials("key", "", url)
	require.NoError(t, err)
	inv := NewHTTPInvoker(creds, nil, "")

	_, err = inv.Invoke(context.Background(), NewRequest(http.MethodGet, "appA/Tasks", "appA"))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Temporary)
}

func TestNewCredentials(t *testing.T) {
	_, err := NewCredentials("  ", "app", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	creds, err := NewCredentials("secret", "appDefault", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, creds.BaseURL())
	assert.Equal(t, "appDefault", creds.ResolveBase(""))
	assert.Equal(t, "appOther", creds.ResolveBase("appOther"))
	assert.NotContains(t, creds.String(), "secret")
}

func TestQueryWithReplaces(t *testing.T) {
	q := Query{}.Add("offset", "a").Add("view", "v").Add("offset", "b")
	q = q.With("offset", "c")

	assert.Equal(t, "view=v&offset=c", q.Encode())
	v, ok := q.Get("offset")
	assert.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestNewRequestDefaultsResourceKey(t *testing.T) {
	req := NewRequest(http.MethodGet, "/meta/bases", "")
	assert.Equal(t, MetaResourceKey, req.ResourceKey)
	assert.Equal(t, "meta/bases", req.Path)
}
