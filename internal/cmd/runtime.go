package cmd

import (
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"airtable-mcp-go/internal/airtable"
	"airtable-mcp-go/internal/config"
	"airtable-mcp-go/internal/mcp"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/telemetry"
	"airtable-mcp-go/internal/tools"
)

// stack is the assembled request path: credentials, governor, retry
// coordinator, dispatcher and sessions, with metrics attached.
type stack struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	governor *airtable.Governor
	caller   tools.Caller
	store    *session.MemoryStore
	sessions session.Manager
}

// loadConfig resolves configuration and builds the logger writing to logOut.
func loadConfig(logOut io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := config.NewLogger(cfg.Log, logOut)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func buildStack(cfg *config.Config, logger zerolog.Logger) (*stack, error) {
	creds, err := airtable.NewCredentials(cfg.Airtable.APIKey, cfg.Airtable.BaseID, cfg.Airtable.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "credentials")
	}

	catalog, err := tools.LoadCatalog()
	if err != nil {
		return nil, errors.Wrap(err, "load tool catalog")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	invoker := airtable.NewHTTPInvoker(creds,
		&http.Client{Timeout: cfg.Airtable.RequestTimeout},
		"airtable-mcp-go/"+versionInfo.Version)
	governor := airtable.NewGovernor(airtable.GovernorConfig{
		Ceiling: cfg.RateLimit.Ceiling,
		Window:  cfg.RateLimit.Window,
	})

	policy := airtable.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Retry.MaxAttempts
	policy.BaseDelay = cfg.Retry.BaseDelay
	policy.Multiplier = cfg.Retry.Multiplier
	policy.JitterBound = cfg.Retry.Jitter
	policy.MaxDelay = cfg.Retry.MaxDelay

	coordinator := airtable.NewCoordinator(invoker, governor, policy,
		airtable.WithLogger(logger),
		airtable.WithObserver(metrics),
	)

	dispatcher := tools.NewDispatcher(tools.NewCatalogRegistry(catalog), coordinator, tools.DispatcherConfig{
		Defaults: tools.Defaults{
			Bases:    creds,
			PageSize: cfg.Airtable.PageSize,
		},
		CallTimeout: cfg.Airtable.CallTimeout,
	}, logger)

	store := session.NewMemoryStore(logger)
	manager := session.NewDefaultManager(store, session.ManagerConfig{SessionTimeout: cfg.Session.Timeout}, logger)

	logger.Debug().
		Stringer("credentials", creds).
		Int("tools", len(catalog.Tools)).
		Int("rate_ceiling", governor.Ceiling()).
		Dur("rate_window", governor.Window()).
		Int("max_attempts", policy.MaxAttempts).
		Msg("Request path assembled")

	return &stack{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		governor: governor,
		caller:   telemetry.NewInstrumentedCaller(dispatcher, metrics),
		store:    store,
		sessions: telemetry.NewSessionManagerWrapper(manager, metrics),
	}, nil
}

func (s *stack) mcpServer() *mcp.Server {
	return mcp.NewServer(mcp.Config{
		Caller:        s.caller,
		Sessions:      s.sessions,
		ServerVersion: versionInfo.Version,
		Logger:        s.logger,
	})
}

func (s *stack) close() {
	_ = s.store.Close()
}
