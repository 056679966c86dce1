package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"airtable-mcp-go/internal/airtable"
	"airtable-mcp-go/internal/jsonrpc"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/tools"
)

type stubCaller struct {
	mu     sync.Mutex
	calls  []string
	params []tools.Params
	result airtable.Result
}

func (c *stubCaller) Dispatch(_ context.Context, name string, params tools.Params) airtable.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	c.params = append(c.params, params)
	if name == "missing" {
		return airtable.Failed(airtable.NewUnknownToolFailure(name))
	}
	return c.result
}

func (c *stubCaller) Definitions() []tools.Definition {
	return []tools.Definition{{
		Name:        "airtable_get_record",
		Description: "Get a record",
		InputSchema: map[string]any{"type": "object"},
	}}
}

func (c *stubCaller) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func newTestServer(t *testing.T) (*Server, *stubCaller, *session.DefaultManager) {
	t.Helper()
	caller := &stubCaller{result: airtable.Success(json.RawMessage(`{"id":"rec1"}`))}
	store := session.NewMemoryStore(zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewDefaultManager(store, session.ManagerConfig{}, zerolog.Nop())
	srv := NewServer(Config{
		Caller:        caller,
		Sessions:      manager,
		ServerVersion: "1.2.3",
		Logger:        zerolog.Nop(),
	})
	return srv, caller, manager
}

func request(t *testing.T, raw string) *jsonrpc.Request {
	t.Helper()
	req, rpcErr := jsonrpc.ParseRequest([]byte(raw))
	require.Nil(t, rpcErr)
	return req
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestInitializeOpensSession(t *testing.T) {
	srv, _, manager := newTestServer(t)
	ctx := context.Background()

	resp, sess := srv.Handle(ctx, request(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"claude","version":"1.0"}}}`),
		session.ClientInfo{Transport: "http"})
	require.NotNil(t, resp)
	require.NotNil(t, sess)
	assert.Nil(t, resp.Error)

	out := marshal(t, resp)
	assert.Equal(t, "2025-03-26", gjson.Get(out, "result.protocolVersion").String())
	assert.Equal(t, ServerName, gjson.Get(out, "result.serverInfo.name").String())
	assert.Equal(t, "1.2.3", gjson.Get(out, "result.serverInfo.version").String())
	assert.True(t, gjson.Get(out, "result.capabilities.tools").IsObject())

	assert.Equal(t, "claude", sess.ClientInfo.Name)
	assert.Equal(t, "2025-03-26", sess.ProtocolVersion)
	count, _ := manager.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestNegotiateProtocolVersion(t *testing.T) {
	assert.Equal(t, "2024-11-05", NegotiateProtocolVersion("2024-11-05"))
	assert.Equal(t, LatestProtocolVersion, NegotiateProtocolVersion("1999-01-01"))
	assert.Equal(t, LatestProtocolVersion, NegotiateProtocolVersion(""))
}

func TestNotificationHasNoResponse(t *testing.T) {
	srv, caller, _ := newTestServer(t)

	resp, sess := srv.Handle(context.Background(),
		request(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`), session.ClientInfo{})
	assert.Nil(t, resp)
	assert.Nil(t, sess)
	assert.Empty(t, caller.Calls())
}

func TestPingAndUnknownMethod(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	resp, _ := srv.Handle(ctx, request(t, `{"jsonrpc":"2.0","id":"p","method":"ping"}`), session.ClientInfo{})
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"p","result":{}}`, marshal(t, resp))

	resp, _ = srv.Handle(ctx, request(t, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`), session.ClientInfo{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.MethodNotFound, resp.Error.Code)
}

func TestToolsList(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := srv.Handle(context.Background(),
		request(t, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`), session.ClientInfo{})
	out := marshal(t, resp)
	assert.Equal(t, int64(1), gjson.Get(out, "result.tools.#").Int())
	assert.Equal(t, "airtable_get_record", gjson.Get(out, "result.tools.0.name").String())
	assert.Equal(t, "object", gjson.Get(out, "result.tools.0.inputSchema.type").String())
}

func TestToolsCallSuccess(t *testing.T) {
	srv, caller, _ := newTestServer(t)

	resp, _ := srv.Handle(context.Background(), request(t,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"airtable_get_record","arguments":{"record_id":"rec1"}}}`),
		session.ClientInfo{})
	out := marshal(t, resp)

	assert.False(t, gjson.Get(out, "result.isError").Bool())
	assert.True(t, gjson.Get(out, "result.structuredContent.successful").Bool())
	assert.Equal(t, "rec1", gjson.Get(out, "result.structuredContent.data.id").String())

	text := gjson.Get(out, "result.content.0.text").String()
	assert.JSONEq(t, `{"data":{"id":"rec1"},"error":"","successful":true}`, text)

	require.Equal(t, []string{"airtable_get_record"}, caller.Calls())
	assert.JSONEq(t, `"rec1"`, string(caller.params[0]["record_id"]))
}

func TestToolsCallUnknownTool(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := srv.Handle(context.Background(), request(t,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"missing"}}`), session.ClientInfo{})
	require.Nil(t, resp.Error)
	out := marshal(t, resp)

	assert.True(t, gjson.Get(out, "result.isError").Bool())
	assert.Equal(t, "UnknownTool", gjson.Get(out, "result.structuredContent.error_kind").String())
	assert.False(t, gjson.Get(out, "result.structuredContent.retryable").Bool())
	assert.JSONEq(t, `{}`, gjson.Get(out, "result.structuredContent.data").Raw)
}

func TestToolsCallBadArguments(t *testing.T) {
	srv, caller, _ := newTestServer(t)
	ctx := context.Background()

	resp, _ := srv.Handle(ctx, request(t,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"airtable_get_record","arguments":[1,2]}}`),
		session.ClientInfo{})
	out := marshal(t, resp)
	assert.True(t, gjson.Get(out, "result.isError").Bool())
	assert.Equal(t, "InvalidParameters", gjson.Get(out, "result.structuredContent.error_kind").String())
	assert.Empty(t, caller.Calls())

	resp, _ = srv.Handle(ctx, request(t,
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{}}`), session.ClientInfo{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.InvalidParams, resp.Error.Code)
}

func TestRenderRemoteFailure(t *testing.T) {
	f := &airtable.Failure{
		Kind:       airtable.KindRemoteRejected,
		Message:    "Unknown field name: \"Nmae\"",
		RemoteCode: "UNKNOWN_FIELD_NAME",
		StatusCode: 422,
	}
	result := RenderFailure(f)

	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.JSONEq(t, `{
		"data": {},
		"error": "Unknown field name: \"Nmae\"",
		"successful": false,
		"error_kind": "RemoteRejected",
		"retryable": false,
		"remote_code": "UNKNOWN_FIELD_NAME",
		"status_code": 422
	}`, result.Content[0].Text)
}
