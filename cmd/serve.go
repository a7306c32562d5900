package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/engine"
	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/monitoring"
	"github.com/sells-group/provider-screen/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scans, stored runs and Prometheus metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := monitoring.NewMetrics(reg)

		eng, err := engine.New(cfg, engine.WithRecorder(metrics))
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring, "", 0,
			)
			go checker.Run(ctx)
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.Metrics.Addr
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           newServer(eng, st, reg, cfg.Serve).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// maxScanBody caps a POST /scan request body.
const maxScanBody = 64 << 20

// server holds the HTTP handlers' dependencies.
type server struct {
	eng         *engine.Engine
	st          store.Store
	gatherer    prometheus.Gatherer
	corsOrigins []string
	scans       *rate.Limiter
}

func newServer(eng *engine.Engine, st store.Store, g prometheus.Gatherer, sc config.ServeConfig) *server {
	limit := rate.Inf
	if sc.ScanRate > 0 {
		limit = rate.Limit(sc.ScanRate)
	}
	burst := sc.ScanBurst
	if burst < 1 {
		burst = 1
	}
	return &server{
		eng:         eng,
		st:          st,
		gatherer:    g,
		corsOrigins: sc.CORSOrigins,
		scans:       rate.NewLimiter(limit, burst),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.With(s.limitScans).Post("/scan", s.handleScan)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/providers", s.handleRunProviders)
	})
	return r
}

// limitScans rejects scans beyond the configured rate.
func (s *server) limitScans(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.scans.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "scan rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// scanRequest is the POST /scan body.
type scanRequest struct {
	Profile   string               `json:"profile"`
	Tag       string               `json:"tag"`
	Providers []model.Provider     `json:"providers"`
	Evidence  []model.EvidenceItem `json:"evidence"`
}

// scanResponse summarizes a finished scan.
type scanResponse struct {
	Run       model.RunEnvelope       `json:"run"`
	Summary   model.RunSummary        `json:"summary"`
	Integrity []engine.IntegrityIssue `json:"integrity,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScanBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Providers) == 0 {
		writeError(w, http.StatusBadRequest, "providers are required")
		return
	}
	for i := range req.Providers {
		if req.Providers[i].Signals == nil {
			req.Providers[i].Signals = model.Signals{}
		}
	}

	res, err := s.eng.Run(engine.Batch{Providers: req.Providers, Evidence: req.Evidence},
		engine.RunOptions{Profile: req.Profile, Tag: req.Tag})
	if err != nil {
		zap.L().Warn("serve: scan rejected", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := saveResult(r.Context(), s.st, res); err != nil {
		zap.L().Error("serve: save scan", zap.String("run_id", res.Run.RunID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save run")
		return
	}

	writeJSON(w, http.StatusAccepted, scanResponse{Run: res.Run, Summary: res.Summary, Integrity: res.Integrity})
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	runs, err := s.st.ListRuns(r.Context(), store.RunFilter{Tag: q.Get("tag"), Limit: limit, Offset: offset})
	if err != nil {
		zap.L().Error("serve: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.st.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("serve: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleRunProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProviderFilter{RunID: chi.URLParam(r, "id")}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("min_fraud_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_fraud_score")
			return
		}
		filter.MinFraudScore = score
	}
	if v := q.Get("tier"); v != "" {
		t, err := model.ParseRiskTier(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tier")
			return
		}
		filter.Tier = t
	}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = st
	}

	records, err := s.st.ListProviders(r.Context(), filter)
	if err != nil {
		zap.L().Error("serve: list providers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list providers")
		return
	}
	if records == nil {
		records = []model.ProviderRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config metrics.addr)")
	rootCmd.AddCommand(serveCmd)
}
