package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/autocrm/dealervoice/internal/call"
	"github.com/autocrm/dealervoice/internal/config"
	"github.com/autocrm/dealervoice/internal/crm"
	"github.com/autocrm/dealervoice/internal/httpapi"
	"github.com/autocrm/dealervoice/internal/observability"
	"github.com/autocrm/dealervoice/internal/turn"
)

type VoiceInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Calls       *call.Manager
	Coordinator *turn.Coordinator
	Metrics     *observability.Metrics
	Voice       VoiceInfo

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	backend, backendCleanup, err := resolveBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	voiceSetup, err := resolveVoice(cfg)
	if err != nil {
		if backendCleanup != nil {
			_ = backendCleanup()
		}
		return nil, err
	}
	cfg.VoiceProvider = voiceSetup.resolvedProvider

	calls := call.NewManager(cfg.CallInactivityTimeout)

	coordinator := turn.NewCoordinator(
		calls,
		backend,
		voiceSetup.recognizer,
		voiceSetup.newOutput,
		metrics,
		cfg.DurationTickInterval,
		cfg.CRMRequestTimeout,
	)

	// Calls abandoned without an explicit hangup still get closed out with
	// the backend so the CRM record does not stay open forever.
	calls.OnExpire(func(s *call.Session) {
		metrics.CallEvents.WithLabelValues("expired").Inc()
		snap := coordinator.EndCall(context.Background(), s, "abandoned")
		log.Printf("app: call %s expired after inactivity (%s)", snap.ID, snap.Status)
	})

	api := httpapi.New(cfg, calls, coordinator, metrics)

	cleanup := func() error {
		var errs []string
		if voiceSetup.cleanup != nil {
			if err := voiceSetup.cleanup(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if backendCleanup != nil {
			if err := backendCleanup(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Calls:       calls,
		Coordinator: coordinator,
		Metrics:     metrics,
		Voice: VoiceInfo{
			Provider: voiceSetup.resolvedProvider,
			Detail:   voiceSetup.detail,
		},
		Cleanup: cleanup,
	}, nil
}

// resolveBackend picks the real CRM over HTTP when a base URL is configured,
// otherwise the built-in simulator (Postgres-backed call logs when a database
// is available, in-memory otherwise).
func resolveBackend(ctx context.Context, cfg config.Config) (crm.Client, func() error, error) {
	if strings.TrimSpace(cfg.CRMBaseURL) != "" {
		log.Printf("crm backend: %s", cfg.CRMBaseURL)
		return crm.NewHTTPClient(cfg.CRMBaseURL, cfg.CRMRequestTimeout), nil, nil
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		store, err := crm.NewPostgresLogStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("call log store init failed: %w", err)
		}
		log.Printf("crm backend: simulator (postgres call logs)")
		return crm.NewSimulator(store), store.Close, nil
	}

	log.Printf("crm backend: simulator (in-memory call logs)")
	return crm.NewSimulator(nil), nil, nil
}
