package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"airtable-mcp-go/internal/airtable"
	"airtable-mcp-go/internal/tools"
)

// gatedCaller holds calls to "slow" until release is closed.
type gatedCaller struct {
	release chan struct{}
}

func (c *gatedCaller) Dispatch(ctx context.Context, name string, _ tools.Params) airtable.Result {
	if name == "slow" {
		select {
		case <-c.release:
		case <-ctx.Done():
		}
	}
	return airtable.Success(json.RawMessage(`{"tool":"` + name + `"}`))
}

func (c *gatedCaller) Definitions() []tools.Definition {
	return nil
}

func TestServeStdio(t *testing.T) {
	srv, caller, manager := newTestServer(t)

	in := strings.Join([]string{
		initializeBody,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"missing"}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	err := srv.ServeStdio(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)

	assert.Equal(t, int64(1), gjson.Get(lines[0], "id").Int())
	assert.Equal(t, ServerName, gjson.Get(lines[0], "result.serverInfo.name").String())
	assert.Equal(t, int64(2), gjson.Get(lines[1], "id").Int())
	assert.Equal(t, int64(-32700), gjson.Get(lines[2], "error.code").Int())
	assert.True(t, gjson.Get(lines[3], "result.isError").Bool())
	assert.Equal(t, []string{"missing"}, caller.Calls())

	count, _ := manager.Count(context.Background())
	assert.Equal(t, 0, count, "the stdio session should end with the stream")
}

func TestServeStdioStopsOnCancel(t *testing.T) {
	srv, _, _ := newTestServer(t)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ServeStdio(ctx, pr, io.Discard)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ServeStdio should return after cancellation")
	}
}

func TestServeStdioRunsToolCallsConcurrently(t *testing.T) {
	caller := &gatedCaller{release: make(chan struct{})}
	srv := NewServer(Config{Caller: caller, Logger: zerolog.Nop()})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() { _ = outR.Close() })

	done := make(chan error, 1)
	go func() {
		done <- srv.ServeStdio(context.Background(), inR, outW)
	}()

	responses := make(chan string, 2)
	go func() {
		reader := bufio.NewReader(outR)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			responses <- line
		}
	}()

	go func() {
		_, _ = io.WriteString(inW,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"slow"}}`+"\n"+
				`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"fast"}}`+"\n")
	}()

	next := func() string {
		t.Helper()
		select {
		case line := <-responses:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for a response line")
			return ""
		}
	}

	first := next()
	assert.Equal(t, int64(2), gjson.Get(first, "id").Int(), "the free call should not wait behind the blocked one")
	assert.Equal(t, "fast", gjson.Get(first, "result.structuredContent.data.tool").String())

	close(caller.release)
	second := next()
	assert.Equal(t, int64(1), gjson.Get(second, "id").Int())

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeStdio should return at EOF")
	}
}

func TestServeStdioWaitsForCallsAtEOF(t *testing.T) {
	caller := &gatedCaller{release: make(chan struct{})}
	srv := NewServer(Config{Caller: caller, Logger: zerolog.Nop()})

	in := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"slow"}}` + "\n"
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- srv.ServeStdio(context.Background(), strings.NewReader(in), &out)
	}()

	select {
	case <-done:
		t.Fatal("ServeStdio returned with a call in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(caller.release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(7), gjson.Get(out.String(), "id").Int())
}
