package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/cluster"
	"github.com/pastrop/feeaudit/internal/domain"
	"github.com/pastrop/feeaudit/internal/ingestion"
	"github.com/pastrop/feeaudit/internal/repository"
	"github.com/pastrop/feeaudit/internal/verify"
)

// Defaults are the server-wide fallbacks for per-request tuning.
type Defaults struct {
	Tolerance           decimal.Decimal
	ConfidenceThreshold float64
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	log      zerolog.Logger
	runRepo  *repository.RunRepo
	clusRepo *repository.ClusterRepo
	verRepo  *repository.VerificationRepo
	discRepo *repository.DiscrepancyRepo
	defaults Defaults
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%s file is required: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	return data, header.Filename, nil
}

func marshalParams(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// checkDuplicate refuses re-ingestion of already-analyzed bytes unless the
// request carries force=true. Returns true when the request was handled.
func (h *Handlers) checkDuplicate(w http.ResponseWriter, r *http.Request, hash string) bool {
	if parseBool(r.FormValue("force")) {
		return false
	}
	exists, err := h.runRepo.ExistsBySourceHash(hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return true
	}
	if exists {
		writeError(w, http.StatusConflict,
			"input already analyzed (hash "+hash+"); pass force=true to re-run")
		return true
	}
	return false
}

// --- VerifyRun ---

func (h *Handlers) VerifyRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	txData, txName, err := readFormFile(r, "transactions")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contractData, _, err := readFormFile(r, "contract")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash := ingestion.Fingerprint(txData)
	if h.checkDuplicate(w, r, hash) {
		return
	}

	rows, _, err := ingestion.Load(txData, txName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	terms, err := ingestion.LoadContract(contractData)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "contract: "+err.Error())
		return
	}

	opts := verify.Options{
		Tolerance:           h.defaults.Tolerance,
		ConfidenceThreshold: h.defaults.ConfidenceThreshold,
		CumulativeReserve:   parseBool(r.FormValue("cumulative_reserve")),
	}
	if v := r.FormValue("tolerance"); v != "" {
		tol, err := decimal.NewFromString(v)
		if err != nil || tol.IsNegative() {
			writeError(w, http.StatusBadRequest, "invalid tolerance: "+v)
			return
		}
		opts.Tolerance = tol
	}
	if v := r.FormValue("confidence_threshold"); v != "" {
		ct, err := strconv.ParseFloat(v, 64)
		if err != nil || ct <= 0 || ct > 1 {
			writeError(w, http.StatusBadRequest, "invalid confidence_threshold: "+v)
			return
		}
		opts.ConfidenceThreshold = ct
	}

	result, err := verify.NewService(h.log, terms, opts).Run(r.Context(), rows)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	now := time.Now().UTC()
	run := &domain.AnalysisRun{
		ID:         uuid.NewString(),
		Kind:       domain.RunVerification,
		SourceName: ingestion.SourceName(txName),
		SourceHash: hash,
		TotalRows:  result.Summary.TotalTransactions,
		ValidRows:  result.Summary.TotalTransactions - result.Summary.MissingDataCount,
		Params: marshalParams(map[string]any{
			"tolerance":            opts.Tolerance,
			"confidence_threshold": opts.ConfidenceThreshold,
			"cumulative_reserve":   opts.CumulativeReserve,
		}),
		Confidence: result.Detection.Confidence,
		Summary: &domain.RunSummary{
			CorrectCount:      result.Summary.CorrectCount,
			ErroneousCount:    result.Summary.ErroneousCount,
			QuestionableCount: result.Summary.QuestionableCount,
			MissingDataCount:  result.Summary.MissingDataCount,
			TotalDiscrepancy:  result.Summary.TotalDiscrepancy,
			AccuracyRate:      result.Summary.AccuracyRate,
		},
		CreatedAt: now,
	}

	if err := h.runRepo.Insert(run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.verRepo.BulkInsert(run.ID, result.Verifications); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	discs := verify.Discrepancies(run.ID, result.Verifications, result.Threshold, now)
	if _, err := h.discRepo.BulkInsert(discs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info().
		Str("run_id", run.ID).
		Str("source", run.SourceName).
		Int("rows", run.TotalRows).
		Int("discrepancies", len(discs)).
		Msg("verification run stored")

	writeJSON(w, http.StatusCreated, map[string]any{
		"run":               run,
		"detection":         result.Detection,
		"summary":           result.Summary,
		"reserve_status":    result.Reserve,
		"discrepancy_count": len(discs),
	})
}

// --- ClusterRun ---

func (h *Handlers) ClusterRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	txData, txName, err := readFormFile(r, "transactions")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash := ingestion.Fingerprint(txData)
	if h.checkDuplicate(w, r, hash) {
		return
	}

	rows, _, err := ingestion.Load(txData, txName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var algo domain.ClusterAlgorithm
	switch v := r.FormValue("algorithm"); v {
	case "", "sorting", string(domain.AlgorithmSorting):
		algo = domain.AlgorithmSorting
	case "kmeans", string(domain.AlgorithmKMeans):
		algo = domain.AlgorithmKMeans
	default:
		writeError(w, http.StatusBadRequest, "unknown algorithm: "+v)
		return
	}

	opts := cluster.RunOptions{
		Algorithm: algo,
		Sorting: cluster.SortingParams{
			MinRateDiff:    parseFloatDefault(r.FormValue("min_rate_diff"), 0),
			MinClusterSize: parseIntDefault(r.FormValue("min_cluster_size"), 0),
		},
		KMeans: cluster.KMeansParams{
			NumClusters:    parseIntDefault(r.FormValue("clusters"), 0),
			MaxClusters:    parseIntDefault(r.FormValue("max_clusters"), 0),
			MinClusterSize: parseIntDefault(r.FormValue("min_cluster_size"), 0),
			Seed:           int64(parseIntDefault(r.FormValue("seed"), 0)),
		},
	}

	out, err := cluster.NewService(h.log).Run(rows, opts)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	report := out.Report

	run := &domain.AnalysisRun{
		ID:         uuid.NewString(),
		Kind:       domain.RunClustering,
		SourceName: ingestion.SourceName(txName),
		SourceHash: hash,
		TotalRows:  report.TotalTransactions,
		ValidRows:  report.ValidTransactions,
		Params:     marshalParams(report.Params),
		Confidence: round2((out.AmountColumn.Confidence + out.CommissionColumn.Confidence) / 2),
		Summary: &domain.RunSummary{
			ClusterCount: report.ClusterCount,
			OutlierCount: report.OutlierCount,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := h.runRepo.Insert(run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.clusRepo.InsertClusters(run.ID, report.Clusters); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info().
		Str("run_id", run.ID).
		Str("algorithm", string(report.Algorithm)).
		Int("clusters", report.ClusterCount).
		Msg("clustering run stored")

	writeJSON(w, http.StatusCreated, map[string]any{
		"run":               run,
		"report":            report,
		"amount_column":     out.AmountColumn,
		"commission_column": out.CommissionColumn,
	})
}

// --- ListRuns ---

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RunFilter{
		Kind:  q.Get("kind"),
		Page:  parseIntDefault(q.Get("page"), 1),
		Limit: parseIntDefault(q.Get("limit"), 50),
	}

	runs, total, err := h.runRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// --- GetRun ---

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) lookupRun(w http.ResponseWriter, r *http.Request) (*domain.AnalysisRun, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return nil, false
	}
	run, err := h.runRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return run, true
}

// --- ListRunVerifications ---

func (h *Handlers) ListRunVerifications(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repository.VerificationFilter{
		Status: q.Get("status"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}

	verifications, total, err := h.verRepo.ListByRun(run.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        run.ID,
		"verifications": verifications,
		"total":         total,
		"page":          filter.Page,
		"limit":         filter.Limit,
	})
}

// --- ListRunDiscrepancies ---

func (h *Handlers) ListRunDiscrepancies(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repository.DiscrepancyFilter{
		RunID:    run.ID,
		FeeType:  q.Get("fee_type"),
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	discs, total, err := h.discRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Total impact of the returned page.
	totalImpact := decimal.Zero
	for _, d := range discs {
		totalImpact = totalImpact.Add(d.Difference.Abs())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        run.ID,
		"discrepancies": discs,
		"total":         total,
		"page":          filter.Page,
		"limit":         filter.Limit,
		"total_impact":  totalImpact,
	})
}

// --- GetRunClusters ---

func (h *Handlers) GetRunClusters(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	clusters, err := h.clusRepo.GetByRunID(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   run.ID,
		"clusters": clusters,
		"count":    len(clusters),
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runRepo.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	discSummary, err := h.discRepo.GetSummary()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	recent, _, err := h.runRepo.List(repository.RunFilter{Limit: 5})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dashboard := map[string]any{
		"runs": map[string]any{
			"total":          stats.TotalRuns,
			"verification":   stats.VerificationRuns,
			"clustering":     stats.ClusteringRuns,
			"rows_analyzed":  stats.RowsAnalyzed,
			"avg_confidence": round2(stats.AvgConfidence),
		},
		"discrepancies": map[string]any{
			"total":        discSummary.TotalCount,
			"critical":     discSummary.BySeverity["CRITICAL"],
			"high":         discSummary.BySeverity["HIGH"],
			"medium":       discSummary.BySeverity["MEDIUM"],
			"low":          discSummary.BySeverity["LOW"],
			"total_impact": discSummary.TotalImpact,
			"by_fee_type":  discSummary.ByFeeType,
		},
		"recent_runs": recent,
	}

	writeJSON(w, http.StatusOK, dashboard)
}
