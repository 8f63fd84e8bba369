package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Templates ---

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl model.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if tmpl.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, req := range tmpl.Coverages {
		if err := compliance.ValidateRequirement(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now().UTC()
	}

	created, err := s.store.CreateTemplate(r.Context(), tmpl)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	category := model.EntityCategory(r.URL.Query().Get("category"))

	templates, err := s.store.ListTemplates(r.Context(), orgID, category)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// --- Entities ---

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var entity model.Entity
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if entity.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	switch entity.Category {
	case model.CategoryVendor, model.CategoryTenant:
	default:
		writeError(w, http.StatusBadRequest, "category must be vendor or tenant")
		return
	}
	switch entity.RiskLevel {
	case model.RiskLow, model.RiskModerate, model.RiskHigh:
	default:
		writeError(w, http.StatusBadRequest, "risk_level must be low, moderate, or high")
		return
	}

	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}

	created, err := s.store.CreateEntity(r.Context(), entity)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	filter := store.EntityFilter{
		OrgID:    r.URL.Query().Get("org_id"),
		Category: model.EntityCategory(r.URL.Query().Get("category")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	entities, err := s.store.ListEntities(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := s.store.GetEntity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// --- Certificates ---

// uploadCertificateRequest accepts either a pre-structured certificate or
// raw document text to run through extraction.
type uploadCertificateRequest struct {
	DocumentText string             `json:"document_text,omitempty"`
	Certificate  *model.Certificate `json:"certificate,omitempty"`
}

func (s *Server) handleUploadCertificate(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	entity, err := s.store.GetEntity(r.Context(), entityID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req uploadCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var cert *model.Certificate
	switch {
	case req.Certificate != nil:
		cert = req.Certificate
	case strings.TrimSpace(req.DocumentText) != "":
		if s.extractor == nil {
			writeError(w, http.StatusUnprocessableEntity, "document extraction is not configured")
			return
		}
		cert, err = s.extractor.Extract(r.Context(), req.DocumentText)
		if err != nil {
			zap.L().Error("certificate extraction failed",
				zap.String("component", "server"),
				zap.String("entity_id", entityID),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "certificate extraction failed")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "either certificate or document_text is required")
		return
	}

	cert.EntityID = entity.ID
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.UploadedAt.IsZero() {
		cert.UploadedAt = time.Now().UTC()
	}

	saved, err := s.store.SaveCertificate(r.Context(), *cert)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// --- Compliance ---

// evaluationResponse pairs a result snapshot with its rendered insight.
type evaluationResponse struct {
	Result  *model.ComplianceResult `json:"result"`
	Insight string                  `json:"insight"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	asOf := model.Today()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := model.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	result, err := s.service.EvaluateEntity(r.Context(), entityID, asOf)
	if err != nil {
		writeEvaluationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, evaluationResponse{
		Result:  result,
		Insight: compliance.GenerateInsight(*result),
	})
}

func (s *Server) handleGetCompliance(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.GetLatestResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluationResponse{
		Result:  result,
		Insight: compliance.GenerateInsight(*result),
	})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := s.store.ListResults(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response",
			zap.String("component", "server"),
			zap.Error(err),
		)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("store operation failed",
		zap.String("component", "server"),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeEvaluationError maps evaluation failures to HTTP statuses. Missing
// entities are 404s; unresolvable templates and bad certificate data are
// client-visible 422s.
func writeEvaluationError(w http.ResponseWriter, err error) {
	var vErr *compliance.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, compliance.ErrNoTemplate):
		writeError(w, http.StatusUnprocessableEntity, "no requirement template applies to this entity")
	case errors.Is(err, compliance.ErrMissingExpiration):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &vErr):
		writeError(w, http.StatusUnprocessableEntity, vErr.Error())
	default:
		zap.L().Error("evaluation failed",
			zap.String("component", "server"),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
