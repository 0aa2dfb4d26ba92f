// File: cmd/app.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/browser/session"
	"github.com/watchloom/pagewatch/internal/change"
	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/llmclient"
	"github.com/watchloom/pagewatch/internal/orchestrator"
	"github.com/watchloom/pagewatch/internal/plan"
	"github.com/watchloom/pagewatch/internal/planstore"
	"github.com/watchloom/pagewatch/internal/promptstore"
	"github.com/watchloom/pagewatch/internal/store"
)

// app bundles the composition root's live dependencies so the caller can
// tear them down in reverse order.
type app struct {
	orch  *orchestrator.Orchestrator
	store *store.Store // nil when running without a database
	pool  *pgxpool.Pool
}

// buildApp wires every collaborator the Orchestrator needs from Config,
// matching the dependency-injected-constructor shape the orchestrator and
// its sub-packages expect.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	primaryModel, ok := cfg.LLM.Models[cfg.LLM.Primary]
	if !ok {
		return nil, fmt.Errorf("app: no llm model entry named %q", cfg.LLM.Primary)
	}
	rawPrimary, err := llmclient.NewClient(primaryModel, logger)
	if err != nil {
		return nil, fmt.Errorf("app: building primary llm client: %w", err)
	}

	var fallbackLLM = rawPrimary
	if cfg.LLM.Fallback != "" {
		if fallbackModel, ok := cfg.LLM.Models[cfg.LLM.Fallback]; ok {
			fallbackLLM, err = llmclient.NewClient(fallbackModel, logger)
			if err != nil {
				return nil, fmt.Errorf("app: building fallback llm client: %w", err)
			}
		}
	}

	// primaryLLM is Router-wrapped so a transport failure or rate limit on
	// the primary model transparently retries against the fallback model
	// within the same call, before GeneratePlanWithFallback's own
	// confidence-based fallback pass ever runs.
	primaryLLM := llmclient.NewRouter(logger, rawPrimary, fallbackLLM)

	prompts := promptstore.New("")

	cache, pool, err := planstore.New(ctx, *cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: building plan cache: %w", err)
	}

	generator := plan.NewGenerator(prompts, primaryLLM, logger)

	newSession := func() orchestrator.BrowserSession {
		return session.New(cfg.Browser, logger)
	}

	var resultStore orchestrator.ResultStore
	var monitoring orchestrator.MonitoringRecorder
	var dataStore *store.Store
	if pool != nil {
		dataStore, err = store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: opening data store: %w", err)
		}
		resultStore = dataStore
		detector := change.NewDetector(cfg.Monitoring.RestockField)
		monitoring = change.NewMonitoringStore(dataStore, detector, logger)
	}

	orch, err := orchestrator.New(cfg, logger, cache, newSession, generator, primaryLLM, fallbackLLM, prompts, resultStore, monitoring)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("app: building orchestrator: %w", err)
	}

	return &app{orch: orch, store: dataStore, pool: pool}, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
