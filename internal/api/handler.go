package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/fathom/internal/budget"
	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/insight"
	"github.com/opensource-finance/fathom/internal/metrics"
	"github.com/opensource-finance/fathom/internal/repository"
	"github.com/opensource-finance/fathom/internal/rules"
	"github.com/opensource-finance/fathom/internal/worker"
)

// InsightService computes one user's insight.
type InsightService interface {
	GetInsight(ctx context.Context, userID domain.UserID) (*domain.AggregateInsight, error)
}

// Config holds server settings.
type Config struct {
	Server  domain.ServerConfig
	Version string
}

// Deps are the handler's collaborators. Repo, Insights and Rules are
// required; a nil Cache or Bus is reported as not configured.
type Deps struct {
	Repo     domain.SignalRepository
	Cache    domain.Cache
	Bus      domain.EventBus
	Insights InsightService
	Rules    *rules.Engine
	Metrics  *metrics.Recorder
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.SignalRepository
	cache        domain.Cache
	bus          domain.EventBus
	insights     InsightService
	engine       *rules.Engine
	metrics      *metrics.Recorder
	version      string
	maxBatchSize int
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	return &Handler{
		repo:         deps.Repo,
		cache:        deps.Cache,
		bus:          deps.Bus,
		insights:     deps.Insights,
		engine:       deps.Rules,
		metrics:      deps.Metrics,
		version:      cfg.Version,
		maxBatchSize: cfg.Server.MaxBatchSize,
	}
}

// userID parses the {id} path parameter.
func userID(r *http.Request) (domain.UserID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return domain.UserID(id), true
}

// computeInsight runs the aggregator and records request metrics.
func (h *Handler) computeInsight(ctx context.Context, id domain.UserID) (*domain.AggregateInsight, error) {
	start := time.Now()
	ins, err := h.insights.GetInsight(ctx, id)
	h.metrics.ObserveInsight("api", insight.Outcome(err), time.Since(start))
	return ins, err
}

// GetInsight handles GET /users/{id}/insight and GET /user_insight/{id}.
func (h *Handler) GetInsight(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id must be an integer",
		})
		return
	}

	ins, err := h.computeInsight(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ins)
}

// GetRecommendation handles GET /users/{id}/recommendation.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id must be an integer",
		})
		return
	}

	ins, err := h.computeInsight(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ins.Recommendation == nil {
		writeError(w, r, budget.ErrNoExpenseData)
		return
	}

	writeJSON(w, http.StatusOK, ins.Recommendation)
}

// BatchRequest is the request body for POST /insights/batch. An empty body
// or an empty user list requests every known user.
type BatchRequest struct {
	UserIDs []domain.UserID `json:"user_ids"`
}

// BatchResponse is the response for POST /insights/batch.
type BatchResponse struct {
	BatchID   string `json:"batch_id"`
	Requested int    `json:"requested"`
}

// BatchInsights queues insight computation on the event bus. Results are
// published to the computed topic by the worker.
func (h *Handler) BatchInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	ids := req.UserIDs
	if len(ids) == 0 {
		all, err := h.repo.ListUserIDs(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ids = all
	}

	if h.maxBatchSize > 0 && len(ids) > h.maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch exceeds maximum size of " + strconv.Itoa(h.maxBatchSize),
		})
		return
	}

	batchID := uuid.New().String()
	sent, err := worker.Submit(ctx, h.bus, batchID, ids)
	if err != nil {
		slog.Error("failed to queue insight batch",
			"batch_id", batchID,
			"sent", sent,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue insight batch",
		})
		return
	}

	slog.Info("insight batch queued", "batch_id", batchID, "count", sent)
	writeJSON(w, http.StatusAccepted, BatchResponse{BatchID: batchID, Requested: sent})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if err := h.repo.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports 503 until every configured backend answers a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	ready := true

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			slog.Warn("readiness check failed", "component", name, "error", err)
			checks[name] = "unavailable"
			ready = false
			return
		}
		checks[name] = "ok"
	}

	check("repository", h.repo.Ping)
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// ListRules returns the rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a stored rule by ID, enabled or not.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRuleConfig(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule validates a rule and saves it to the database. A missing ID is
// generated. Call POST /rules/reload to apply it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}
	if ruleConfig.ID == "" {
		ruleConfig.ID = uuid.New().String()
	}
	if ruleConfig.Version == "" {
		ruleConfig.Version = "1.0.0"
	}

	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all enabled rules from the database into the engine.
// On a compile error the previous rule set stays loaded.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	dbRules, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine",
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules",
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// writeError maps not-found errors to 404. Anything else is logged and
// reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, insight.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case errors.Is(err, budget.ErrNoExpenseData):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no expense data for user"})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
