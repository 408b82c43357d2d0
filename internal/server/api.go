package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/logging"
	"github.com/teemow/inboxrules/internal/processor"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

// Headers identifying the acting user. Authentication happens upstream.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserEmail     = "X-User-Email"
	HeaderGoogleAccount = "X-Google-Account"
)

// maxBodyBytes limits request bodies.
const maxBodyBytes = 1 << 20

// Previewer evaluates rules against a user's inbox without applying them.
type Previewer interface {
	Preview(ctx context.Context, user store.User, max int) ([]rules.MatchResult, error)
}

// JobRunner starts and tracks background processing jobs.
type JobRunner interface {
	Start(user store.User, max int) (processor.Job, error)
	Status(id string) (processor.Job, error)
	Cancel(id string) (processor.Job, error)
}

// Limits are the default and maximum batch sizes accepted by the API.
type Limits struct {
	MaxEmails     int
	PreviewEmails int
}

// API serves the rule management and processing endpoints.
type API struct {
	store   store.Store
	preview Previewer
	jobs    JobRunner
	limits  Limits
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewAPI creates the HTTP API.
func NewAPI(st store.Store, preview Previewer, jobs JobRunner, limits Limits, metrics *instrumentation.Metrics, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxEmails <= 0 {
		limits.MaxEmails = processor.DefaultMaxEmails
	}
	if limits.PreviewEmails <= 0 {
		limits.PreviewEmails = processor.DefaultPreviewEmails
	}
	return &API{
		store:   st,
		preview: preview,
		jobs:    jobs,
		limits:  limits,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Router builds the route table. Health endpoints are registered when
// health is non-nil.
func (a *API) Router(health *HealthChecker) *mux.Router {
	router := mux.NewRouter()
	router.Use(metricsMiddleware(a.metrics))

	if health != nil {
		health.RegisterHealthEndpoints(router)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.userMiddleware)

	api.HandleFunc("/rules", a.handleListRules).Methods(http.MethodGet)
	api.HandleFunc("/rules", a.handleCreateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/validate", a.handleValidateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id:[0-9]+}", a.handleGetRule).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id:[0-9]+}", a.handleUpdateRule).Methods(http.MethodPut)
	api.HandleFunc("/rules/{id:[0-9]+}", a.handleDeleteRule).Methods(http.MethodDelete)

	api.HandleFunc("/patterns", a.handlePatterns).Methods(http.MethodGet)
	api.HandleFunc("/emails/preview", a.handlePreview).Methods(http.MethodGet)

	api.HandleFunc("/process", a.handleStartProcess).Methods(http.MethodPost)
	api.HandleFunc("/process/{job}", a.handleJobStatus).Methods(http.MethodGet)
	api.HandleFunc("/process/{job}", a.handleCancelJob).Methods(http.MethodDelete)

	api.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/activity", a.handleActivity).Methods(http.MethodGet)

	return router
}

type userKey struct{}

// userMiddleware resolves the acting user from request headers.
func (a *API) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderUserID)
		if id == "" {
			writeError(w, http.StatusUnauthorized, HeaderUserID+" header required")
			return
		}
		user := store.User{
			ID:      id,
			Email:   r.Header.Get(HeaderUserEmail),
			Account: r.Header.Get(HeaderGoogleAccount),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(r *http.Request) store.User {
	user, _ := r.Context().Value(userKey{}).(store.User)
	return user
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode JSON response", logging.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeStoreError maps store and validation errors to responses.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *rules.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Rule not found")
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid rule", "errors": verr.Problems})
	default:
		a.logger.Error("store operation failed",
			logging.Operation(routeTemplate(r)),
			logging.Err(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func ruleID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// intParam parses a non-negative integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Rule handlers

func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListRules(r.Context(), userFrom(r).ID)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	// new rules are active unless the body says otherwise
	draft := rules.Rule{IsActive: true}
	if !decodeJSON(w, r, &draft) {
		return
	}

	created, err := a.store.CreateRule(r.Context(), userFrom(r).ID, draft)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	var draft rules.Rule
	if !decodeJSON(w, r, &draft) {
		return
	}
	problems := rules.Validate(draft)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(problems) == 0,
		"errors": problems,
	})
}

func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid rule id")
		return
	}
	rule, err := a.store.GetRule(r.Context(), userFrom(r).ID, id)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid rule id")
		return
	}
	var patch store.RulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	updated, err := a.store.UpdateRule(r.Context(), userFrom(r).ID, id, patch)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid rule id")
		return
	}
	if err := a.store.DeleteRule(r.Context(), userFrom(r).ID, id); err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"patterns": rules.BuiltinPatterns()})
}

// Email handlers

// previewEntry is one row of the preview response.
type previewEntry struct {
	Email rules.Email `json:"email"`
	Rule  *rules.Rule `json:"rule"`
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "max_results", a.limits.PreviewEmails)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := userFrom(r)
	results, err := a.preview.Preview(r.Context(), user, clamp(n, a.limits.PreviewEmails, a.limits.MaxEmails))
	if err != nil {
		a.logger.Error("preview failed", logging.UserHash(user.Email), logging.Err(err))
		writeError(w, http.StatusBadGateway, "Failed to fetch emails")
		return
	}

	entries := make([]previewEntry, len(results))
	for i, res := range results {
		entries[i] = previewEntry{Email: res.Email, Rule: res.Rule}
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": entries})
}

// processRequest is the optional body of POST /api/process.
type processRequest struct {
	MaxEmails int `json:"max_emails"`
}

func (a *API) handleStartProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.MaxEmails < 0 {
		writeError(w, http.StatusBadRequest, "max_emails must be positive")
		return
	}

	user := userFrom(r)
	job, err := a.jobs.Start(user, clamp(req.MaxEmails, a.limits.MaxEmails, a.limits.MaxEmails))
	if err != nil {
		if errors.Is(err, processor.ErrJobRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "Processing unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "Email processing started in background",
		"job":     job,
	})
}

// ownJob loads a job and hides jobs of other users.
func (a *API) ownJob(w http.ResponseWriter, r *http.Request, load func(string) (processor.Job, error)) (processor.Job, bool) {
	job, err := load(mux.Vars(r)["job"])
	if err != nil || job.UserID != userFrom(r).ID {
		writeError(w, http.StatusNotFound, "Job not found")
		return processor.Job{}, false
	}
	return job, true
}

func (a *API) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if job, ok := a.ownJob(w, r, a.jobs.Status); ok {
		writeJSON(w, http.StatusOK, job)
	}
}

func (a *API) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	// check ownership before canceling
	if _, ok := a.ownJob(w, r, a.jobs.Status); !ok {
		return
	}
	job, err := a.jobs.Cancel(mux.Vars(r)["job"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// Dashboard handlers

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.store.Stats(r.Context(), userFrom(r).ID, store.StartOfDay(a.now()))
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", store.DefaultActivityLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := a.store.Activity(r.Context(), userFrom(r).ID, store.Page{Limit: limit, Offset: offset})
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
