package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/infra/security"
	"github.com/nycmed/hospital-records/internal/repository"
	"github.com/nycmed/hospital-records/internal/transport/http/middleware"
	"github.com/nycmed/hospital-records/internal/usecase"
)

// VisitHandler exposes patient visit endpoints.
type VisitHandler struct {
	visits *usecase.VisitService
}

// NewVisitHandler constructs VisitHandler.
func NewVisitHandler(visits *usecase.VisitService) *VisitHandler {
	return &VisitHandler{visits: visits}
}

// CreateVisit records a new patient visit. The diagnosis is encrypted
// before it reaches storage.
func (h *VisitHandler) CreateVisit(c *gin.Context) {
	var req VisitCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "patient_id and doctor_id are required"))
		return
	}

	var visitedAt time.Time
	if req.VisitedAt != nil {
		visitedAt = *req.VisitedAt
	}

	visit, err := h.visits.Create(c.Request.Context(), usecase.CreateVisitInput{
		PatientID: strings.TrimSpace(req.PatientID),
		DoctorID:  strings.TrimSpace(req.DoctorID),
		VisitedAt: visitedAt,
		Diagnosis: req.Diagnosis,
		Notes:     req.Notes,
		Actor:     actorUsername(c),
		IP:        strings.TrimSpace(c.ClientIP()),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to record visit"))
		return
	}

	c.JSON(http.StatusCreated, VisitPayload{
		ID:        visit.ID,
		PatientID: visit.PatientID,
		DoctorID:  visit.DoctorID,
		VisitedAt: visit.VisitedAt,
		Diagnosis: req.Diagnosis,
		Notes:     visit.Notes,
		CreatedAt: visit.CreatedAt,
	})
}

// GetVisit returns one visit with the diagnosis rendered for display.
func (h *VisitHandler) GetVisit(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "visit id is required"))
		return
	}

	view, err := h.visits.Get(c.Request.Context(), id, actorUsername(c), strings.TrimSpace(c.ClientIP()),
		func(patientID string) bool { return canReadPatient(c, patientID) })
	if err != nil {
		RespondWithMappedError(c, err, visitReadErrorCases, http.StatusInternalServerError, "failed to load visit")
		return
	}

	c.JSON(http.StatusOK, newVisitPayload(*view))
}

var visitReadErrorCases = []ErrorCase{
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "visit not found"},
	{Err: usecase.ErrVisitAccessDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
}

// ListPatientVisits returns a patient's visit history, newest first.
func (h *VisitHandler) ListPatientVisits(c *gin.Context) {
	patientID := strings.TrimSpace(c.Param("id"))
	if patientID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "patient id is required"))
		return
	}

	if !canReadPatient(c, patientID) {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "insufficient permissions"))
		return
	}

	limit := parsePositiveInt(c.Query("limit"), 100)

	views, err := h.visits.ListByPatient(c.Request.Context(), patientID, limit, actorUsername(c), strings.TrimSpace(c.ClientIP()))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load visit history"))
		return
	}

	payload := make([]VisitPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, newVisitPayload(view))
	}

	c.JSON(http.StatusOK, VisitListResponse{Visits: payload, Total: len(payload)})
}

// UpdateDiagnosis replaces the diagnosis on an existing visit.
func (h *VisitHandler) UpdateDiagnosis(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "visit id is required"))
		return
	}

	var req DiagnosisUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid diagnosis payload"))
		return
	}

	err := h.visits.UpdateDiagnosis(c.Request.Context(), id, req.Diagnosis, actorUsername(c), strings.TrimSpace(c.ClientIP()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "visit not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to update diagnosis"))
		return
	}

	c.Status(http.StatusNoContent)
}

// canReadPatient resolves whether the caller may read the given patient's
// records: a blanket visit:read grant, or visit:read-own when the patient
// is the caller.
func canReadPatient(c *gin.Context, patientID string) bool {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return false
	}
	return hasCapability(claims, domain.CapVisitRead) ||
		(hasCapability(claims, domain.CapVisitReadOwn) && claims.Subject == patientID)
}

func hasCapability(claims *security.AccessTokenClaims, cap domain.Capability) bool {
	for _, granted := range claims.Capabilities {
		if granted == string(cap) {
			return true
		}
	}
	return false
}
