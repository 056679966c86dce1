package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachdb/errors"

	"airtable-mcp-go/internal/jsonrpc"
	"airtable-mcp-go/internal/session"
)

// maxLineSize bounds one newline-delimited message on stdio.
const maxLineSize = 10 << 20

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes one
// response line per request to out. It returns nil when in reaches EOF and
// ctx.Err() when ctx ends first; either way it waits for tool calls in flight.
//
// Tool calls run concurrently and may answer out of order. Everything else,
// including session bookkeeping, is handled in arrival order.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	client := session.ClientInfo{Transport: "stdio"}
	var current *session.Session
	defer func() {
		if current != nil {
			_ = s.sessions.Delete(context.WithoutCancel(ctx), current.ID)
		}
	}()

	lw := &lockedWriter{w: bufio.NewWriter(out)}
	writeErr := make(chan error, 1)
	var calls sync.WaitGroup
	defer calls.Wait()

	s.logger.Info().Msg("Serving MCP on stdio")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-writeErr:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return errors.Wrap(err, "read stdio")
					}
				default:
				}
				s.logger.Info().Msg("Stdio closed")
				return nil
			}
			if len(line) == 0 {
				continue
			}

			req, rpcErr := jsonrpc.ParseRequest(line)
			if rpcErr != nil {
				if err := lw.writeLine(jsonrpc.NewErrorResponse(nil, rpcErr)); err != nil {
					return err
				}
				continue
			}

			reqCtx := ctx
			if current != nil {
				reqCtx = session.WithSession(ctx, current)
			}

			if req.Method == MethodToolsCall && !req.IsNotification() {
				calls.Add(1)
				go func() {
					defer calls.Done()
					resp, _ := s.Handle(reqCtx, req, client)
					if err := lw.writeLine(resp); err != nil {
						select {
						case writeErr <- err:
						default:
						}
					}
				}()
				continue
			}

			resp, opened := s.Handle(reqCtx, req, client)
			if opened != nil {
				if current != nil {
					_ = s.sessions.Delete(ctx, current.ID)
				}
				current = opened
			}
			if err := lw.writeLine(resp); err != nil {
				return err
			}
		}
	}
}

// lockedWriter serializes response lines from concurrent tool calls.
type lockedWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (l *lockedWriter) writeLine(resp *jsonrpc.Response) error {
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write stdio")
	}
	return errors.Wrap(l.w.Flush(), "flush stdio")
}
