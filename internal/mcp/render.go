package mcp

import (
	"encoding/json"

	"airtable-mcp-go/internal/airtable"
)

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tools/call result shown to the agent.
type CallToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent *Envelope `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError"`
}

// Envelope is the per-tool response body. Data is an empty object and Error
// holds the message on failure; Error is empty on success.
type Envelope struct {
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Successful bool            `json:"successful"`
	ErrorKind  airtable.Kind   `json:"error_kind,omitempty"`
	Retryable  *bool           `json:"retryable,omitempty"`
	RemoteCode string          `json:"remote_code,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
}

// NewEnvelope converts a tool result into its envelope.
func NewEnvelope(res airtable.Result) *Envelope {
	if res.OK() {
		return &Envelope{Data: res.Payload(), Successful: true}
	}
	f := res.Failure()
	retryable := f.Retryable
	return &Envelope{
		Data:       json.RawMessage(`{}`),
		Error:      f.Message,
		ErrorKind:  f.Kind,
		Retryable:  &retryable,
		RemoteCode: f.RemoteCode,
		StatusCode: f.StatusCode,
	}
}

// Render builds the tools/call result for res.
func Render(res airtable.Result) CallToolResult {
	env := NewEnvelope(res)
	text, err := json.Marshal(env)
	if err != nil {
		// Only an invalid payload can fail to encode.
		return RenderFailure(airtable.NewFailure(airtable.KindTransientFailure,
			"response payload could not be encoded: "+err.Error(), true))
	}
	return CallToolResult{
		Content:           []Content{{Type: "text", Text: string(text)}},
		StructuredContent: env,
		IsError:           !env.Successful,
	}
}

// RenderFailure builds the tools/call result for a failure.
func RenderFailure(f *airtable.Failure) CallToolResult {
	return Render(airtable.Failed(f))
}
