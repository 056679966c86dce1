package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	req, rpcErr := ParseRequest([]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
	require.Nil(t, rpcErr)
	assert.Equal(t, "tools/list", req.Method)
	assert.Equal(t, "7", string(req.ID))
	assert.False(t, req.IsNotification())

	req, rpcErr = ParseRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.Nil(t, rpcErr)
	assert.True(t, req.IsNotification())
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		code ErrorCode
	}{
		{"malformed", `{"jsonrpc":`, ParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, InvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, InvalidRequest},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, InvalidRequest},
		{"empty", `  `, InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rpcErr := ParseRequest([]byte(tt.data))
			require.NotNil(t, rpcErr)
			assert.Equal(t, tt.code, rpcErr.Code)
		})
	}
}

func TestResponsesPreserveID(t *testing.T) {
	out, err := json.Marshal(NewResult(json.RawMessage(`"abc"`), map[string]any{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"abc","result":{}}`, string(out))

	out, err = json.Marshal(NewErrorResponse(nil, NewError(ParseError, "Parse error", nil)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, string(out))
}
