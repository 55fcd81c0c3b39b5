package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
	"github.com/lexflow/case-analysis/internal/core/usecase"
	"github.com/lexflow/case-analysis/internal/infrastructure/export"
)

// Router exposes the analysis pipeline over HTTP. Analysis itself is
// asynchronous; the analyze and bulk endpoints only validate and enqueue,
// the worker pool does the actual runs.
type Router struct {
	repo        ports.DocumentRepository
	queue       ports.MessageQueue
	bulk        ports.BulkCoordinator
	ledger      ports.LedgerStore
	audit       ports.AuditLog
	guard       ports.CostGuard
	exporter    *export.Exporter
	dailyBudget decimal.Decimal
	now         func() time.Time
}

func NewRouter(
	repo ports.DocumentRepository,
	queue ports.MessageQueue,
	bulk ports.BulkCoordinator,
	ledger ports.LedgerStore,
	audit ports.AuditLog,
	guard ports.CostGuard,
	exporter *export.Exporter,
	dailyBudget decimal.Decimal,
) *Router {
	return &Router{
		repo:        repo,
		queue:       queue,
		bulk:        bulk,
		ledger:      ledger,
		audit:       audit,
		guard:       guard,
		exporter:    exporter,
		dailyBudget: dailyBudget,
		now:         time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents/{id}/analyze", rt.analyzeDocument)
	mux.HandleFunc("GET /v1/documents/{id}/analysis", rt.getAnalysis)
	mux.HandleFunc("GET /v1/documents/{id}/analysis/export", rt.exportAnalysis)
	mux.HandleFunc("POST /v1/documents/{id}/cancel", rt.cancelAnalysis)
	mux.HandleFunc("POST /v1/analysis/estimate", rt.estimateCost)
	mux.HandleFunc("POST /v1/analysis/bulk", rt.bulkAnalyze)
	mux.HandleFunc("GET /v1/admin/costs/summary", rt.costsSummary)
	mux.HandleFunc("GET /v1/admin/costs/today", rt.costsToday)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		ForceReanalyze bool `json:"force_reanalyze"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}

	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !domain.CanStartAnalysis(doc.Status, req.ForceReanalyze) {
		detail := "analysis already in progress"
		if doc.Status == domain.StatusAnalysisComplete {
			detail = "document already analyzed; set force_reanalyze to repeat"
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": detail})
		return
	}

	if err := rt.ensureBudget(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}

	if err := rt.queue.PublishAnalysisRequested(r.Context(), domain.AnalysisRequest{
		DocumentID:     id,
		ForceReanalyze: req.ForceReanalyze,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id,
		"status":      "queued",
	})
}

// ensureBudget checks the estimate against what is left of today's ceiling
// so a doomed request fails here with a reason instead of after the queue
// hop. Admission is still decided by the guard when the run starts.
func (rt *Router) ensureBudget(ctx context.Context, doc *domain.Document) error {
	estimate := usecase.EstimateDocumentCost(doc)
	remaining, err := rt.guard.Remaining(ctx)
	if err != nil {
		return err
	}
	if estimate.GreaterThan(remaining) {
		return domain.WrapError(domain.ErrBudgetExceeded, "admit analysis request",
			fmt.Errorf("estimated $%s exceeds remaining $%s of today's budget",
				estimate.StringFixed(4), remaining.StringFixed(4)))
	}
	return nil
}

// getAnalysis is the idempotent polling read: repeated calls observe the
// same status and result until a new run commits.
func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":     doc.ID,
		"status":          doc.Status,
		"analysis_result": doc.Analysis,
	})
}

func (rt *Router) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := rt.repo.RequestCancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id,
		"status":      "cancel_requested",
	})
}

func (rt *Router) estimateCost(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeDocumentIDs(w, r)
	if !ok {
		return
	}
	estimate, err := rt.bulk.EstimateCost(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (rt *Router) bulkAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentIDs    []string `json:"document_ids"`
		ForceReanalyze bool     `json:"force_reanalyze"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.DocumentIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_ids is required"})
		return
	}

	outcomes, err := rt.bulk.Submit(r.Context(), req.DocumentIDs, req.ForceReanalyze)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": outcomes})
}

func (rt *Router) costsSummary(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be an integer in [1,365]"})
			return
		}
		days = parsed
	}

	sinceDay := domain.LedgerDay(rt.now().AddDate(0, 0, -(days - 1)))
	summary, err := rt.ledger.Summarize(r.Context(), sinceDay)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) costsToday(w http.ResponseWriter, r *http.Request) {
	today := domain.LedgerDay(rt.now())
	spent, err := rt.ledger.SumForDay(r.Context(), today)
	if err != nil {
		writeError(w, err)
		return
	}
	remaining, err := rt.guard.Remaining(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	percentage := 0.0
	if rt.dailyBudget.IsPositive() {
		percentage = spent.Div(rt.dailyBudget).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":           today,
		"spent_usd":     spent.InexactFloat64(),
		"budget_usd":    rt.dailyBudget.InexactFloat64(),
		"remaining_usd": remaining.InexactFloat64(),
		"percentage":    percentage,
	})
}

func (rt *Router) exportAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := rt.audit.ListByDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	workbook, err := rt.exporter.AnalysisWorkbook(doc, events)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "analysis_"+id+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func decodeDocumentIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req struct {
		DocumentIDs []string `json:"document_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return nil, false
	}
	if len(req.DocumentIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_ids is required"})
		return nil, false
	}
	return req.DocumentIDs, true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
