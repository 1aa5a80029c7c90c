package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agreex/internal/chains"
	"agreex/internal/config"
	"agreex/internal/dex"
	"agreex/internal/escrow"
	"agreex/internal/idempotency"
	"agreex/internal/okxauth"
	"agreex/internal/verification"
)

const maxBodyBytes = 1 << 20

// Dependencies are the collaborators the API fronts. Contracts and Replay are
// probed for a Ping method by the health endpoint.
type Dependencies struct {
	Chains    *chains.Registry
	Escrow    *escrow.Manager
	Verifier  *verification.Verifier
	DEX       dex.Client
	Contracts escrow.Store
	Replay    idempotency.Store
}

type pinger interface {
	Ping(context.Context) error
}

type Server struct {
	cfg        *config.AppConfig
	chains     *chains.Registry
	escrow     *escrow.Manager
	verifier   *verification.Verifier
	dex        dex.Client
	replay     idempotency.Store
	hmac       *okxauth.Verifier
	httpServer *http.Server
	metrics    *metricsRegistry
	started    time.Time

	dexHealthFn    func(context.Context) error
	storeHealthFns map[string]func(context.Context) error
}

func NewServer(cfg *config.AppConfig, deps Dependencies) *Server {
	s := &Server{
		cfg:      cfg,
		chains:   deps.Chains,
		escrow:   deps.Escrow,
		verifier: deps.Verifier,
		dex:      deps.DEX,
		replay:   deps.Replay,
		hmac: &okxauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		metrics:        newMetricsRegistry(),
		started:        time.Now(),
		storeHealthFns: make(map[string]func(context.Context) error),
	}

	if checker, ok := deps.DEX.(dex.HealthChecker); ok {
		s.dexHealthFn = checker.Ping
	}
	if checker, ok := deps.Contracts.(pinger); ok {
		s.storeHealthFns["contracts"] = checker.Ping
	}
	if checker, ok := deps.Replay.(pinger); ok {
		s.storeHealthFns["idempotency"] = checker.Ping
	}

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Routes builds the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	r.Get("/api/info", s.handleInfo)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())

		r.Get("/chains", s.handleListChains)
		r.Get("/chains/{name}", s.handleGetChain)

		r.Get("/contracts", s.handleListContracts)
		r.Get("/contracts/{address}", s.handleGetContract)

		r.Group(func(r chi.Router) {
			r.Use(s.hmac.Middleware)

			r.Post("/verify", s.handleVerify)
			r.Post("/contracts", s.replayable("create_contract", belowServerError, s.handleCreateContract))
			r.Post("/contracts/{address}/milestones/{index}/complete", s.replayable("complete_milestone", releasedOnly, s.handleCompleteMilestone))
			r.Post("/contracts/{address}/close", s.handleCloseContract)
			r.Post("/swap/quote", s.handleQuote)
			r.Post("/cross-chain/verify", s.handleCrossChain)
		})
	})
	return r
}

func (s *Server) Start() error {
	log.Printf("API listening on %s (simulate=%t)", s.httpServer.Addr, s.cfg.OKX.Simulate)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	mode := "live"
	if s.cfg.OKX.Simulate {
		mode = "simulation"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"platform":          verification.Platform,
		"aggregatorVersion": "v5",
		"mode":              mode,
		"supportedChains":   s.chains.Names(),
		"uptimeSeconds":     int64(time.Since(s.started).Seconds()),
	})
}

type componentHealth struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	probe := func(fn func(context.Context) error) componentHealth {
		if fn == nil {
			return componentHealth{Connected: true}
		}
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := fn(probeCtx); err != nil {
			overallHealthy = false
			return componentHealth{Error: err.Error()}
		}
		return componentHealth{
			Connected: true,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
	}

	dexInfo := probe(s.dexHealthFn)
	stores := make(map[string]componentHealth, len(s.storeHealthFns))
	for name, fn := range s.storeHealthFns {
		stores[name] = probe(fn)
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"simulated": s.cfg.OKX.Simulate,
		"dex":       dexInfo,
		"storage":   stores,
	})
}
