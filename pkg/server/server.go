package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/loadprofile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/metrics"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
)

// Server handles the HTTP API of the load-profile service.
type Server struct {
	storage     storage.Database
	loadProfile *loadprofile.Service
	metrics     *metrics.Metrics

	listenAddr string
	httpServer *http.Server

	adminEmails   []string
	oidcAudiences map[string]string
	oidcVerifiers map[string]tokenVerifier
	bypassAuth    bool
	serverName    string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, lp *loadprofile.Service, m *metrics.Metrics) *Server {
	srv := &Server{
		storage:     db,
		loadProfile: lp,
		metrics:     m,
		serverName:  "greencalc",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to change sites, tenants and meters")
	oidcAudiences := map[string]string{}
	lflag.JSON(&oidcAudiences, "oidc-audiences", oidcAudiences, "JSON map of provider (google/microsoft) to audience/client ID")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		if *adminEmails != "" {
			srv.adminEmails = strings.Split(*adminEmails, ",")
			for i, email := range srv.adminEmails {
				srv.adminEmails[i] = strings.TrimSpace(email)
			}
		}
		if len(oidcAudiences) > 0 {
			srv.oidcAudiences = make(map[string]string, len(oidcAudiences))
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcAudiences))
			for n, a := range oidcAudiences {
				issuer, ok := oidcIssuers[n]
				if !ok {
					log.Ctx(context.Background()).Error("unsupported oidc audience client", slog.String("client", n))
					os.Exit(1)
				}
				provider, err := oidc.NewProvider(context.Background(), issuer)
				if err != nil {
					log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("client", n), slog.Any("error", err))
					os.Exit(1)
				}
				srv.oidcVerifiers[n] = oidcVerifier(provider.Verifier(&oidc.Config{ClientID: a}))
				srv.oidcAudiences[n] = a
			}
		} else {
			log.Ctx(context.Background()).Warn("no oidc-audiences configured, authentication is disabled")
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		apiMux.Handle(pattern, s.metrics.WrapHandler(pattern, h))
	}

	// sites and their inputs
	route("GET /api/sites", s.handleListSites)
	route("PUT /api/sites/{siteID}", s.requireAdmin(s.handleUpsertSite))
	route("GET /api/sites/{siteID}/settings", s.handleGetSettings)
	route("POST /api/sites/{siteID}/settings", s.requireAdmin(s.handleUpdateSettings))
	route("GET /api/sites/{siteID}/tenants", s.handleListTenants)
	route("PUT /api/sites/{siteID}/tenants", s.requireAdmin(s.handleUpsertTenants))
	route("GET /api/sites/{siteID}/meters", s.handleListMeters)
	route("POST /api/sites/{siteID}/meters", s.requireAdmin(s.handleImportMeter))
	route("GET /api/shop-types", s.handleListShopTypes)
	route("PUT /api/shop-types", s.requireAdmin(s.handleUpsertShopTypes))

	// load profile views
	route("GET /api/sites/{siteID}/series", s.handleSeries)
	route("GET /api/sites/{siteID}/envelope", s.handleEnvelope)
	route("GET /api/sites/{siteID}/stacked", s.handleStacked)
	route("GET /api/sites/{siteID}/monthly", s.handleMonthly)
	route("GET /api/sites/{siteID}/day", s.handleDay)
	route("POST /api/sites/{siteID}/simulate", s.handleSimulate)
	route("POST /api/sites/{siteID}/invalidate", s.requireAdmin(s.handleInvalidate))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", s.metrics.Handler())
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// writeStorageError maps a storage or pipeline error onto a response.
func writeStorageError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrSiteNotFound):
		writeJSONError(w, "site not found", http.StatusNotFound)
	case errors.Is(err, loadprofile.ErrDayNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	default:
		log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
		writeJSONError(w, msg, http.StatusInternalServerError)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
