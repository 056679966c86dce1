package tools

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"airtable-mcp-go/internal/airtable"
)

// DefaultCallTimeout bounds a whole tool call including waits and retries.
const DefaultCallTimeout = 60 * time.Second

// Caller dispatches tool calls by name.
type Caller interface {
	Dispatch(ctx context.Context, name string, params Params) airtable.Result
	Definitions() []Definition
}

// DispatcherConfig holds per-process dispatch settings.
type DispatcherConfig struct {
	Defaults    Defaults
	CallTimeout time.Duration
}

// Dispatcher resolves tool calls against the registry and routes them to the
// paginator or directly to the executor.
type Dispatcher struct {
	registry    *Registry
	exec        airtable.Executor
	pager       *airtable.Paginator
	defaults    Defaults
	callTimeout time.Duration
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher. Every remote request goes through exec.
func NewDispatcher(registry *Registry, exec airtable.Executor, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Dispatcher{
		registry:    registry,
		exec:        exec,
		pager:       airtable.NewPaginator(exec, logger),
		defaults:    cfg.Defaults,
		callTimeout: cfg.CallTimeout,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Definitions returns the definitions of all registered tools.
func (d *Dispatcher) Definitions() []Definition {
	return d.registry.Definitions()
}

// Dispatch validates and executes one tool call. Validation failures are
// returned before any network activity.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params Params) airtable.Result {
	logger := d.logger.With().
		Str("call_id", uuid.NewString()).
		Str("tool", name).
		Logger()

	tool, ok := d.registry.Get(name)
	if !ok {
		logger.Warn().Msg("Unknown tool")
		return airtable.Failed(airtable.NewUnknownToolFailure(name))
	}

	call, f := tool.Prepare(params, d.defaults)
	if f != nil {
		logger.Warn().Str("kind", string(f.Kind)).Str("reason", f.Message).Msg("Tool call rejected")
		return airtable.Failed(f)
	}

	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	var res airtable.Result
	if call.Listing != nil {
		res = d.pager.Collect(ctx, *call.Listing)
	} else {
		res = d.exec.Execute(ctx, call.Request)
	}

	event := logger.Info()
	if !res.OK() {
		event = logger.Warn().
			Str("kind", string(res.Failure().Kind)).
			Bool("retryable", res.Failure().Retryable)
	}
	event.
		Str("method", call.Request.Method).
		Str("resource", call.Request.ResourceKey).
		Bool("listing", call.Listing != nil).
		Dur("duration", time.Since(start)).
		Msg("Tool call finished")

	return res
}
