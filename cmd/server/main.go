package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/cartloop/promorules/internal/config"
	"github.com/cartloop/promorules/internal/db"
	"github.com/cartloop/promorules/internal/logger"
	"github.com/cartloop/promorules/rules"
)

const (
	serviceName    = "Promotion Rules API"
	serviceVersion = "1.0.0"
)

var customerTypes = map[string]struct{}{
	"retail":      {},
	"restaurants": {},
}

var loyaltyTiers = map[string]struct{}{
	"none":   {},
	"silver": {},
	"gold":   {},
}

type Server struct {
	db        *sqlx.DB
	svc       *rules.Service
	engineURL string
	router    *chi.Mux
}

func NewServer(cfg *config.Config) (*Server, error) {
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := rules.NewSQLRuleStore(conn)
	engine := rules.NewEngineClient(cfg.EngineURL, cfg.EngineTimeout)

	s := &Server{
		db:        conn,
		svc:       rules.NewService(store, engine),
		engineURL: cfg.EngineURL,
	}
	s.setupRoutes()
	return s, nil
}

// newServerWithService wires a server around an existing service, used by
// tests to run against an in-memory store without a database.
func newServerWithService(svc *rules.Service, engineURL string) *Server {
	s := &Server{svc: svc, engineURL: engineURL}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/info", s.handleInfo)
		r.Post("/evaluate", s.handleEvaluate)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{ruleId}", s.handleGetRule)
			r.Put("/{ruleId}", s.handleUpdateRule)
			r.Delete("/{ruleId}", s.handleDeleteRule)
			r.Patch("/{ruleId}/toggle-status", s.handleToggleRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	var filters rules.ListFilters
	q := r.URL.Query()
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "is_active must be a boolean", nil)
			return
		}
		filters.Active = &active
	}
	if v := q.Get("stackable"); v != "" {
		stackable, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "stackable must be a boolean", nil)
			return
		}
		filters.Stackable = &stackable
	}
	filters.NameContains = q.Get("search")

	list, err := s.svc.List(r.Context(), filters)
	if err != nil {
		logger.Error("listing rules failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to retrieve rules", err)
		return
	}

	resp := RulesListResponse{
		Rules:   make([]RuleResponse, len(list)),
		Summary: rules.Summarize(list),
	}
	for i, rule := range list {
		resp.Rules[i] = toRuleResponse(rule, false)
	}
	respondData(w, http.StatusOK, "Rules retrieved successfully", resp)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.svc.Create(r.Context(), rules.CreateRuleParams{
		Name:      req.Name,
		Salience:  req.Salience,
		Stackable: req.Stackable,
		Condition: req.Condition,
		Action:    req.Action,
		Active:    req.IsActive,
	})
	if err != nil {
		respondRuleError(w, "Failed to create rule", err)
		return
	}
	respondData(w, http.StatusCreated, "Rule created successfully", toRuleResponse(rule, false))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Get(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondRuleError(w, "Failed to retrieve rule", err)
		return
	}
	respondData(w, http.StatusOK, "Rule retrieved successfully", toRuleResponse(rule, true))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.svc.Update(r.Context(), chi.URLParam(r, "ruleId"), rules.UpdateRuleParams{
		Name:      req.Name,
		Salience:  req.Salience,
		Stackable: req.Stackable,
		Condition: req.Condition,
		Action:    req.Action,
		Active:    req.IsActive,
	})
	if err != nil {
		respondRuleError(w, "Failed to update rule", err)
		return
	}
	respondData(w, http.StatusOK, "Rule updated successfully", toRuleResponse(rule, false))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		respondRuleError(w, "Failed to delete rule", err)
		return
	}
	respondData(w, http.StatusOK, "Rule deleted successfully", nil)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Toggle(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondRuleError(w, "Failed to toggle rule status", err)
		return
	}
	respondData(w, http.StatusOK, "Rule status updated successfully", toRuleResponse(rule, false))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if msg := validateEvaluateRequest(&req); msg != "" {
		respondError(w, http.StatusUnprocessableEntity, msg, nil)
		return
	}

	customer := *req.Customer
	if customer.LoyaltyTier == "" {
		customer.LoyaltyTier = "none"
	}
	options := rules.EvaluateOptions{MaxRules: 50}
	if req.Options != nil {
		options = *req.Options
	}

	result, err := s.svc.Evaluate(r.Context(), *req.Line, customer, options)
	if err != nil {
		switch {
		case errors.Is(err, rules.ErrEngineUnavailable):
			respondError(w, http.StatusServiceUnavailable,
				"Rule evaluation service temporarily unavailable", err)
		case errors.Is(err, rules.ErrEngineResponse):
			respondError(w, http.StatusBadGateway, "Rule evaluation failed", err)
		default:
			respondError(w, http.StatusInternalServerError, "Rule evaluation failed", err)
		}
		return
	}

	respondData(w, http.StatusOK, "Rules evaluated successfully", EvaluateResponse{
		EvaluationResult: result,
		Meta: EvaluateMeta{
			EvaluatedAt:       time.Now().UTC(),
			RulesProcessed:    len(result.Applied),
			EvaluationOptions: options,
		},
	})
}

// validateEvaluateRequest checks request shape and ranges, returning an
// error message or "" when valid.
func validateEvaluateRequest(req *EvaluateRequest) string {
	if req.Line == nil {
		return "Line item data is required."
	}
	if req.Customer == nil {
		return "Customer data is required."
	}
	if req.Line.ProductID <= 0 {
		return "Product ID is required."
	}
	if req.Line.Quantity < 1 || req.Line.Quantity > 9999 {
		return "Quantity must be between 1 and 9999."
	}
	if req.Line.UnitPrice <= 0 {
		return "Unit price must be greater than zero."
	}
	if req.Customer.Email == "" {
		return "Customer email is required."
	}
	if _, ok := customerTypes[req.Customer.Type]; !ok {
		return "Customer type must be one of: retail, restaurants"
	}
	if req.Customer.LoyaltyTier != "" {
		if _, ok := loyaltyTiers[req.Customer.LoyaltyTier]; !ok {
			return "Loyalty tier must be one of: none, silver, gold"
		}
	}
	if req.Customer.OrdersCount < 0 {
		return "Orders count cannot be negative."
	}
	if req.Options != nil && req.Options.MaxRules != 0 &&
		(req.Options.MaxRules < 1 || req.Options.MaxRules > 100) {
		return "Maximum rules must be between 1 and 100."
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := true
	list, err := s.svc.List(r.Context(), rules.ListFilters{Active: &active})
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, envelope{
			Success: false,
			Data: map[string]any{
				"service_status": "unhealthy",
				"error":          err.Error(),
				"last_check":     time.Now().UTC(),
			},
		})
		return
	}
	respondJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"service_status":     "healthy",
			"active_rules_count": len(list),
			"rule_engine_url":    s.engineURL,
			"last_check":         time.Now().UTC(),
		},
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"name":        serviceName,
		"version":     serviceVersion,
		"description": "B2B eCommerce promotion rules management API",
		"endpoints": map[string]any{
			"rules": map[string]string{
				"GET /api/rules":                      "List all rules",
				"POST /api/rules":                     "Create a new rule",
				"GET /api/rules/{id}":                 "Get a specific rule",
				"PUT /api/rules/{id}":                 "Update a rule",
				"DELETE /api/rules/{id}":              "Delete a rule",
				"PATCH /api/rules/{id}/toggle-status": "Toggle rule active status",
			},
			"evaluation": map[string]string{
				"POST /api/evaluate": "Evaluate rules against line and customer data",
			},
			"system": map[string]string{
				"GET /api/health": "Health check endpoint",
				"GET /api/info":   "API information",
			},
		},
		"timestamp": time.Now().UTC(),
	})
}

// respondRuleError maps domain errors from the rules service to HTTP
// statuses.
func respondRuleError(w http.ResponseWriter, fallback string, err error) {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		respondError(w, http.StatusNotFound, "Rule not found", nil)
	case errors.Is(err, rules.ErrDuplicateName):
		respondError(w, http.StatusConflict, "A rule with this name already exists", nil)
	case errors.Is(err, rules.ErrInvalidCondition),
		errors.Is(err, rules.ErrInvalidAction),
		errors.Is(err, rules.ErrInvalidName),
		errors.Is(err, rules.ErrInvalidSalience):
		respondError(w, http.StatusUnprocessableEntity, "Validation failed", err)
	default:
		logger.Error("unexpected rule error", "error", err)
		respondError(w, http.StatusInternalServerError, fallback, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondData(w http.ResponseWriter, status int, message string, data any) {
	respondJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	e := envelope{Success: false, Message: message}
	if err != nil {
		e.Error = err.Error()
	}
	respondJSON(w, status, e)
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("creating server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "engine_url", cfg.EngineURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	logger.Info("server stopped")
}
