package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/m365-assessment/assessment-server/internal/graph"
	"github.com/m365-assessment/assessment-server/internal/models"
	"github.com/m365-assessment/assessment-server/internal/scoring"
	"github.com/m365-assessment/assessment-server/internal/storage"
)

// HandlePerformAssessment runs the Graph calls for a customer tenant,
// computes the composite score and persists the assessment. A failure of one
// metric source degrades the assessment instead of aborting it; a persistence
// failure is fatal to the request.
func (s *RESTServer) HandlePerformAssessment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customerId" validate:"required,uuid"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validateStruct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	customer, err := s.store.GetCustomer(ctx, uuid.MustParse(req.CustomerID))
	if err != nil {
		s.respondStoreError(w, err, "customer not found")
		return
	}
	if customer.IsDeleted() {
		s.respondError(w, http.StatusNotFound, "customer not found")
		return
	}
	if !customer.ConsentCompleted() {
		s.respondError(w, http.StatusForbidden,
			"admin consent has not been completed for this tenant; open the consent URL as a tenant administrator and retry")
		return
	}

	gc, err := s.graph(customer.TenantID)
	if err != nil {
		s.respondInternal(w, err)
		return
	}

	assessment := &models.Assessment{
		CustomerID: customer.ID,
		TenantID:   customer.TenantID,
		Status:     models.AssessmentStatusInProgress,
	}
	if err := s.store.CreateAssessment(ctx, assessment); err != nil {
		s.respondInternal(w, err)
		return
	}

	metrics := s.collectMetrics(ctx, gc, customer)
	result := scoring.Compute(metrics.License, metrics.SecureScore)

	now := time.Now()
	assessment.Status = models.AssessmentStatusCompleted
	if metrics.Degraded() {
		assessment.Status = models.AssessmentStatusCompletedWithErrors
	}
	assessment.Score = result.Overall
	assessment.Metrics = metrics
	assessment.Recommendations = result.Recommendations
	assessment.CompletedAt = &now

	if err := s.finalizeAssessment(ctx, customer, assessment); err != nil {
		s.respondInternal(w, err)
		return
	}

	s.publisher.AssessmentCompleted(assessment)

	log.Info().
		Str("customer_id", customer.ID.String()).
		Str("tenant_id", customer.TenantID).
		Int("score", assessment.Score).
		Str("status", string(assessment.Status)).
		Msg("Assessment completed")

	s.respondData(w, http.StatusCreated, assessment)
}

// collectMetrics gathers the two metric sources, tolerating per-source
// failures. A failed call yields the zeroed "unavailable" sentinel with an
// explanatory summary.
func (s *RESTServer) collectMetrics(ctx context.Context, gc GraphAPI, customer *models.Customer) models.Metrics {
	var metrics models.Metrics

	if org, err := gc.GetOrganization(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", customer.TenantID).
			Msg("Organization lookup failed")
	} else {
		log.Debug().
			Str("tenant_id", customer.TenantID).
			Str("organization", org.DisplayName).
			Msg("Organization resolved")
	}

	if skus, err := gc.ListSubscribedSKUs(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", customer.TenantID).
			Msg("License lookup failed, continuing with degraded metrics")
		metrics.License = scoring.UnavailableLicenseMetrics(metricFailureReason(err))
	} else {
		metrics.License = graph.LicenseMetricsFromSKUs(skus)
	}

	if doc, err := gc.GetSecureScore(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("tenant_id", customer.TenantID).
			Msg("Secure score lookup failed, continuing with degraded metrics")
		metrics.SecureScore = scoring.UnavailableSecureScoreMetrics(metricFailureReason(err))
	} else {
		metrics.SecureScore = graph.SecureScoreMetrics(doc)
	}

	return metrics
}

// metricFailureReason produces the explanatory summary for an unavailable
// metric block
func metricFailureReason(err error) string {
	if graph.IsAuthError(err) {
		return "permission not granted; verify admin consent includes the required scope"
	}
	if apiErr, ok := graph.AsAPIError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

// finalizeAssessment persists the completed assessment, the history row and
// the customer counters in one transaction
func (s *RESTServer) finalizeAssessment(ctx context.Context, customer *models.Customer, assessment *models.Assessment) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.UpdateAssessment(ctx, assessment); err != nil {
		return err
	}

	if err := tx.AppendHistory(ctx, models.HistoryFromAssessment(assessment)); err != nil {
		return err
	}

	total := customer.TotalAssessments + 1
	completedAt := *assessment.CompletedAt
	if _, err := tx.UpdateCustomer(ctx, customer.ID, storage.CustomerPatch{
		TotalAssessments:   &total,
		LastAssessmentDate: &completedAt,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// HandleListAssessments lists a customer's active assessments
func (s *RESTServer) HandleListAssessments(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDFromRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	assessments, total, err := s.store.ListAssessments(r.Context(), id, limit, offset)
	if err != nil {
		s.respondStoreError(w, err, "assessments not found")
		return
	}

	s.respondData(w, http.StatusOK, map[string]interface{}{
		"assessments": assessments,
		"total":       total,
	})
}

// HandleArchiveAssessment atomically moves a completed assessment out of the
// active table; its history row is preserved for trend display
func (s *RESTServer) HandleArchiveAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assessment id")
		return
	}

	if err := s.store.ArchiveAssessment(r.Context(), id); err != nil {
		s.respondStoreError(w, err, "assessment not found")
		return
	}

	s.respondMessage(w, http.StatusOK, nil, "assessment archived")
}

// HandleListHistory lists history rows, optionally scoped to one tenant
func (s *RESTServer) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.store.ListHistory(r.Context(), tenantID, limit)
	if err != nil {
		s.respondStoreError(w, err, "history not found")
		return
	}

	s.respondData(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"total":   len(history),
	})
}

// HandleAppendHistory appends one history row
func (s *RESTServer) HandleAppendHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssessmentID    string            `json:"assessmentId" validate:"required,uuid"`
		CustomerID      string            `json:"customerId" validate:"required,uuid"`
		TenantID        string            `json:"tenantId" validate:"required"`
		Date            time.Time         `json:"date" validate:"required"`
		Status          string            `json:"status" validate:"required,oneof=completed completed_with_errors"`
		Score           int               `json:"score" validate:"min=0,max=100"`
		Metrics         models.Metrics    `json:"metrics"`
		Recommendations models.StringList `json:"recommendations"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validateStruct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	row := &models.AssessmentHistory{
		AssessmentID:    uuid.MustParse(req.AssessmentID),
		CustomerID:      uuid.MustParse(req.CustomerID),
		TenantID:        req.TenantID,
		Date:            req.Date,
		Status:          models.AssessmentStatus(req.Status),
		Score:           req.Score,
		Metrics:         req.Metrics,
		Recommendations: req.Recommendations,
	}

	if err := s.store.AppendHistory(r.Context(), row); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "history row for this assessment already exists")
			return
		}
		s.respondInternal(w, err)
		return
	}

	s.respondData(w, http.StatusCreated, row)
}

// HandlePruneHistory deletes history rows older than the given age
func (s *RESTServer) HandlePruneHistory(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("olderThanDays"))
	if err != nil || days < 1 {
		s.respondError(w, http.StatusBadRequest, "olderThanDays must be a positive integer")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	pruned, err := s.store.PruneHistory(r.Context(), cutoff)
	if err != nil {
		s.respondInternal(w, err)
		return
	}

	s.respondData(w, http.StatusOK, map[string]interface{}{
		"pruned": pruned,
		"cutoff": cutoff,
	})
}
