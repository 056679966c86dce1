package telemetry

import (
	"context"
	"time"

	"airtable-mcp-go/internal/airtable"
	"airtable-mcp-go/internal/tools"
)

// InstrumentedCaller wraps a tool caller to add telemetry
type InstrumentedCaller struct {
	tools.Caller
	metrics *Metrics
}

// NewInstrumentedCaller creates a new telemetry-aware tool caller
func NewInstrumentedCaller(caller tools.Caller, metrics *Metrics) *InstrumentedCaller {
	return &InstrumentedCaller{
		Caller:  caller,
		metrics: metrics,
	}
}

// Dispatch wraps the original Dispatch to add telemetry. Failures are labelled
// with their kind.
func (c *InstrumentedCaller) Dispatch(ctx context.Context, name string, params tools.Params) airtable.Result {
	start := time.Now()

	res := c.Caller.Dispatch(ctx, name, params)

	status := "success"
	if f := res.Failure(); f != nil {
		status = string(f.Kind)
	}
	c.metrics.RecordToolExecution(toolLabel(res, name), status, time.Since(start))

	return res
}

// toolLabel folds unknown names into one label so clients cannot grow the series set.
func toolLabel(res airtable.Result, name string) string {
	if f := res.Failure(); f != nil && f.Kind == airtable.KindUnknownTool {
		return "unknown"
	}
	return name
}
