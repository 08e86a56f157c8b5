// Package api exposes the analytics core over HTTP: KPI summaries,
// anomaly detection and triage, explanations with feedback, and the
// automation registry and run ledger.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ops-copilot/internal/automation"
	"github.com/sells-group/ops-copilot/internal/detector"
	"github.com/sells-group/ops-copilot/internal/explain"
	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

// Handler wires the core services into HTTP endpoints.
type Handler struct {
	store     store.Store
	detector  *detector.Detector
	explainer *explain.Explainer
	evaluator *automation.Evaluator
	log       *zap.Logger
}

func NewHandler(st store.Store, det *detector.Detector, exp *explain.Explainer, ev *automation.Evaluator) *Handler {
	return &Handler{
		store:     st,
		detector:  det,
		explainer: exp,
		evaluator: ev,
		log:       zap.L().Named("api"),
	}
}

// Router builds the chi route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Get("/kpis", h.listKpis)
	r.Get("/kpis/{name}/timeseries", h.kpiTimeseries)
	r.Get("/anomalies", h.listAnomalies)
	r.Post("/anomalies/run", h.runDetection)
	r.Post("/anomalies/{id}/status", h.updateAnomalyStatus)
	r.Post("/explain", h.explain)
	r.Post("/explain/feedback", h.explainFeedback)
	r.Get("/automations", h.listAutomations)
	r.Post("/automations", h.registerAutomation)
	r.Get("/automations/runs", h.listAutomationRuns)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listKpis(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(model.DateLayout)
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = now
	}
	if from == "" {
		from = model.AddDays(to, -30)
	}
	summaries, err := h.store.KpiSummaries(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpis": summaries, "from": from, "to": to})
}

func (h *Handler) kpiTimeseries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.writeError(w, model.InvalidParameterf("from and to query parameters are required"))
		return
	}
	defined, err := h.store.KpiDefined(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !defined {
		h.writeError(w, model.NotFoundf("kpi %s", name))
		return
	}
	obs, err := h.store.Observations(r.Context(), name, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpi_name": name, "observations": obs})
}

func (h *Handler) listAnomalies(w http.ResponseWriter, r *http.Request) {
	filter := store.AnomalyFilter{
		Status:  model.AnomalyStatus(r.URL.Query().Get("status")),
		KpiName: r.URL.Query().Get("kpi"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, model.InvalidParameterf("limit %q must be a positive integer", raw))
			return
		}
		filter.Limit = limit
	}
	anomalies, err := h.store.ListAnomalies(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": anomalies})
}

type runDetectionRequest struct {
	KpiName    string  `json:"kpi_name,omitempty"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	WindowDays int     `json:"window_days,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	Evaluate   bool    `json:"evaluate,omitempty"`
	DryRun     bool    `json:"dry_run,omitempty"`
}

func (h *Handler) runDetection(w http.ResponseWriter, r *http.Request) {
	var req runDetectionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	results, err := h.detector.DetectAll(r.Context(), detector.Params{
		KpiName:    req.KpiName,
		From:       req.From,
		To:         req.To,
		WindowDays: req.WindowDays,
		Threshold:  req.Threshold,
		DryRun:     req.DryRun,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]any{"results": results}
	if req.Evaluate {
		var flagged []model.Anomaly
		for _, res := range results {
			flagged = append(flagged, res.Anomalies...)
		}
		runs, err := h.evaluator.Evaluate(r.Context(), flagged, automation.Options{DryRun: req.DryRun})
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp["automation_runs"] = runs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateAnomalyStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.AnomalyStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if !req.Status.Valid() {
		h.writeError(w, model.InvalidParameterf("status %q is not one of open, acknowledged, resolved", req.Status))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.UpdateAnomalyStatus(r.Context(), id, req.Status); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

type explainRequest struct {
	KpiName    string `json:"kpi_name"`
	Date       string `json:"date"`
	TopN       int    `json:"top_n,omitempty"`
	WindowDays int    `json:"window_days,omitempty"`
	Narrative  bool   `json:"narrative,omitempty"`
}

func (h *Handler) explain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.explainer.Explain(r.Context(), req.KpiName, req.Date, explain.Options{
		TopN:          req.TopN,
		WindowDays:    req.WindowDays,
		WithNarrative: req.Narrative,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type feedbackRequest struct {
	AuditID string `json:"audit_id"`
	Rating  string `json:"rating"`
	Notes   string `json:"notes,omitempty"`
}

func (h *Handler) explainFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.AuditID == "" || req.Rating == "" {
		h.writeError(w, model.InvalidParameterf("audit_id and rating are required"))
		return
	}
	fb := model.AuditFeedback{Rating: req.Rating, Notes: req.Notes}
	if err := h.store.AttachFeedback(r.Context(), req.AuditID, fb); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audit_id": req.AuditID, "rating": req.Rating})
}

func (h *Handler) listAutomations(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	rules, err := h.store.ListRules(r.Context(), enabledOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": rules})
}

type registerAutomationRequest struct {
	Name       string              `json:"name"`
	TriggerKpi string              `json:"trigger_kpi"`
	Condition  model.RuleCondition `json:"condition"`
	WebhookURL string              `json:"webhook_url"`
	Enabled    *bool               `json:"enabled"` // defaults to true when absent
}

func (h *Handler) registerAutomation(w http.ResponseWriter, r *http.Request) {
	var req registerAutomationRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	rule := model.AutomationRule{
		Name:       req.Name,
		TriggerKpi: req.TriggerKpi,
		Condition:  req.Condition,
		WebhookURL: req.WebhookURL,
		Enabled:    req.Enabled == nil || *req.Enabled,
	}
	if err := h.evaluator.RegisterRule(r.Context(), &rule); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) listAutomationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, model.InvalidParameterf("limit %q must be a positive integer", raw))
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.InvalidParameterf("malformed request body: %v", err)
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, model.ErrInvalidParameter):
		status = http.StatusBadRequest
	case eris.Is(err, model.ErrNotFound), eris.Is(err, model.ErrNoData):
		status = http.StatusNotFound
	case eris.Is(err, model.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
