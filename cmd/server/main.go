package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/liamcoop/ruledefs/catalog"
	"github.com/liamcoop/ruledefs/internal/config"
	"github.com/liamcoop/ruledefs/internal/logger"
	"github.com/liamcoop/ruledefs/internal/metrics"
	"github.com/liamcoop/ruledefs/rules"
	_ "github.com/lib/pq"
)

// maxDocumentBytes bounds the size of an uploaded rule document body
const maxDocumentBytes = 1 << 20

type Server struct {
	db      *sql.DB
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	format  rules.Format
	router  *chi.Mux
}

// NewServer wires the catalog to HTTP routes. db is only used for health
// checks and may be nil when rule sets live in memory.
func NewServer(c *catalog.Catalog, m *metrics.Metrics, db *sql.DB, defaultFormat rules.Format) *Server {
	s := &Server{
		db:      db,
		catalog: c,
		metrics: m,
		format:  defaultFormat,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// Health check and metrics
	r.Get("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Dry-run validation
	r.Post("/api/v1/validate", s.handleValidate)

	// Rule set management
	r.Route("/api/v1/rulesets", func(r chi.Router) {
		r.Get("/", s.handleListRuleSets)
		r.Post("/", s.handleCreateRuleSet)

		r.Route("/{ruleSet}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteRuleSet)

			// Rule management
			r.Post("/rules", s.handleImportRules)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Put("/rules/{ruleId}/active", s.handleSetActive)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "memory"
	if s.db != nil {
		storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Storage:        storage,
		RuleSetsLoaded: len(s.catalog.ListRuleSets()),
	})
}

// requestFormat picks JSON for application/json bodies and the configured
// default otherwise.
func (s *Server) requestFormat(r *http.Request) rules.Format {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return s.format
	}
	switch mediaType {
	case "application/json":
		return rules.FormatJSON
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return rules.FormatYAML
	}
	return s.format
}

// Validate handler
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	defs, err := s.catalog.Validate(body, s.requestFormat(r))
	if err != nil {
		respondCatalogError(w, "rule documents rejected", err)
		return
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		Valid: true,
		Count: len(defs),
		Rules: defs,
	})
}

// List rule sets handler
func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RuleSetsListResponse{
		RuleSets: s.catalog.ListRuleSets(),
	})
}

// Create rule set handler
func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	if err := s.catalog.CreateRuleSet(req.Name); err != nil {
		respondCatalogError(w, "failed to create rule set", err)
		return
	}

	respondJSON(w, http.StatusCreated, RuleSetResponse{Name: req.Name})
}

// Delete rule set handler
func (s *Server) handleDeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	ruleSet := chi.URLParam(r, "ruleSet")

	if err := s.catalog.DeleteRuleSet(ruleSet); err != nil {
		respondCatalogError(w, "failed to delete rule set", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Import rules handler
func (s *Server) handleImportRules(w http.ResponseWriter, r *http.Request) {
	ruleSet := chi.URLParam(r, "ruleSet")
	body := http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	imported, err := s.catalog.Import(ruleSet, body, s.requestFormat(r))
	if err != nil {
		respondCatalogError(w, "failed to import rules", err)
		return
	}

	respondJSON(w, http.StatusCreated, RulesListResponse{
		Rules: toRuleResponses(imported),
	})
}

// List rules handler; ?active=true returns only active rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet := chi.URLParam(r, "ruleSet")

	var (
		list []*rules.Rule
		err  error
	)
	if r.URL.Query().Get("active") == "true" {
		list, err = s.catalog.ListActiveRules(ruleSet)
	} else {
		list, err = s.catalog.ListRules(ruleSet)
	}
	if err != nil {
		respondCatalogError(w, "failed to list rules", err)
		return
	}

	respondJSON(w, http.StatusOK, RulesListResponse{
		Rules: toRuleResponses(list),
	})
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleSet := chi.URLParam(r, "ruleSet")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.catalog.GetRule(ruleSet, ruleID)
	if err != nil {
		respondCatalogError(w, "failed to get rule", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

// Activate or deactivate rule handler
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	ruleSet := chi.URLParam(r, "ruleSet")
	ruleID := chi.URLParam(r, "ruleId")

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Active == nil {
		respondError(w, http.StatusBadRequest, "active is required", nil)
		return
	}

	rule, err := s.catalog.SetActive(ruleSet, ruleID, *req.Active)
	if err != nil {
		respondCatalogError(w, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleSet := chi.URLParam(r, "ruleSet")
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.catalog.DeleteRule(ruleSet, ruleID); err != nil {
		respondCatalogError(w, "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// respondCatalogError maps catalog and reader errors to HTTP statuses
func respondCatalogError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, rules.ErrMalformedDocument),
		errors.Is(err, catalog.ErrInvalidRuleSetName):
		status = http.StatusBadRequest
	case errors.Is(err, rules.ErrInvalidRuleDefinition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrRuleSetNotFound),
		errors.Is(err, rules.ErrRuleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrRuleSetExists),
		errors.Is(err, rules.ErrRuleExists):
		status = http.StatusConflict
	}

	response := ErrorResponse{Error: message, Details: err.Error()}

	var invalid *rules.InvalidRuleDefinitionError
	var malformed *rules.MalformedDocumentError
	switch {
	case errors.As(err, &invalid):
		response.Field = invalid.Field
		if invalid.Index >= 0 {
			response.Index = &invalid.Index
		}
	case errors.As(err, &malformed):
		if malformed.Index >= 0 {
			response.Index = &malformed.Index
		}
	}

	if status == http.StatusInternalServerError {
		logger.Error(message, "error", err)
	}
	respondJSON(w, status, response)
}

// openCatalog builds the catalog on Postgres when a database URL is
// configured and in memory otherwise.
func openCatalog(cfg *config.Config, m *metrics.Metrics) (*catalog.Catalog, *sql.DB, error) {
	opts := []catalog.Option{
		catalog.WithReaderOptions(cfg.ReaderOptions()...),
		catalog.WithCacheConfig(rules.CacheConfig{TTL: cfg.CacheTTL}),
		catalog.WithMetrics(m),
	}

	if cfg.CheckConditions {
		checker, err := rules.NewCELConditionChecker()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, catalog.WithConditionChecker(checker))
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, rule sets are kept in memory")
		return catalog.New(catalog.NewInMemoryBackend(), opts...), nil, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := catalog.New(catalog.NewPostgresBackend(db), opts...)

	logger.Info("Loading rule sets from database...")
	if err := c.LoadAll(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load rule sets: %w", err)
	}

	return c, db, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	logOpts := logger.OptionsFromEnv()
	logOpts.Level = cfg.LogLevel
	if err := logger.Setup(context.Background(), logOpts); err != nil {
		logger.Warn("Logger setup incomplete", "error", err)
	}

	m := metrics.New()

	c, db, err := openCatalog(cfg, m)
	if err != nil {
		logger.Fatal("Failed to create catalog", "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	server := NewServer(c, m, db, cfg.Format)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "ruleSets", c.ListRuleSets())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("Logger shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
