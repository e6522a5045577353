package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/src-permit-api/internal/dto"
	"github.com/noah-isme/src-permit-api/internal/models"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
	"github.com/noah-isme/src-permit-api/pkg/response"
)

type permitService interface {
	Create(ctx context.Context, req dto.CreatePermitRequest) (*dto.IssuedPermit, error)
	Verify(ctx context.Context, code string) (*dto.VerifyResult, error)
	Revoke(ctx context.Context, id int64, actorID int64) (*models.PermitDetail, error)
	CheckValidity(ctx context.Context, id int64) (*dto.ValidityResult, error)
	Stats(ctx context.Context) (*dto.PermitStats, error)
	List(ctx context.Context, filter models.PermitFilter) ([]models.PermitDetail, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.PermitDetail, error)
	Export(ctx context.Context, filter models.PermitFilter) ([]byte, error)
	Slip(ctx context.Context, id int64) ([]byte, error)
}

// PermitHandler exposes permit issuance and verification endpoints.
type PermitHandler struct {
	service permitService
}

// NewPermitHandler constructs a permit handler.
func NewPermitHandler(svc permitService) *PermitHandler {
	return &PermitHandler{service: svc}
}

// Create godoc
// @Summary Issue permit
// @Description Issue a permit for a registered student. The plaintext code is only returned here.
// @Tags Permits
// @Accept json
// @Produce json
// @Param payload body dto.CreatePermitRequest true "Permit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /permits [post]
func (h *PermitHandler) Create(c *gin.Context) {
	var req dto.CreatePermitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid permit payload"))
		return
	}
	// The issuer is always the signed-in staff member.
	if claims := claimsFromContext(c); claims != nil {
		req.IssuedByID = claims.UserID
	}

	issued, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issued)
}

// List godoc
// @Summary List permits
// @Tags Permits
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Code, student name or student id"
// @Param status query string false "active, expired or revoked"
// @Param sort_by query string false "created_at, expiry_date, amount_paid, status"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /permits [get]
func (h *PermitHandler) List(c *gin.Context) {
	permits, pagination, err := h.service.List(c.Request.Context(), permitFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permits, pagination)
}

// Get godoc
// @Summary Get permit
// @Tags Permits
// @Produce json
// @Param id path int true "Permit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /permits/{id} [get]
func (h *PermitHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	permit, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permit, nil)
}

// Verify godoc
// @Summary Verify permit code
// @Description Checks a code against active permits. Expired matches are moved to expired.
// @Description Only the status, expiry and student name and code of a match are returned.
// @Tags Permits
// @Accept json
// @Produce json
// @Param payload body dto.VerifyPermitRequest true "Code"
// @Success 200 {object} response.Envelope
// @Router /permits/verify [post]
func (h *PermitHandler) Verify(c *gin.Context) {
	var req dto.VerifyPermitRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "code is required"))
		return
	}
	h.verify(c, req.Code)
}

// VerifyByPath godoc
// @Summary Verify permit code from a QR link
// @Tags Permits
// @Produce json
// @Param code path string true "Permit code"
// @Success 200 {object} response.Envelope
// @Router /permits/verify/{code} [get]
func (h *PermitHandler) VerifyByPath(c *gin.Context) {
	h.verify(c, c.Param("code"))
}

func (h *PermitHandler) verify(c *gin.Context, code string) {
	result, err := h.service.Verify(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Public(), nil)
}

// Revoke godoc
// @Summary Revoke permit
// @Tags Permits
// @Produce json
// @Param id path int true "Permit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /permits/{id}/revoke [post]
func (h *PermitHandler) Revoke(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var actorID int64
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	permit, err := h.service.Revoke(c.Request.Context(), id, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permit, nil)
}

// Validity godoc
// @Summary Check permit validity
// @Tags Permits
// @Produce json
// @Param id path int true "Permit ID"
// @Success 200 {object} response.Envelope
// @Router /permits/{id}/validity [get]
func (h *PermitHandler) Validity(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.CheckValidity(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stats godoc
// @Summary Permit counts by status
// @Tags Permits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /permits/stats [get]
func (h *PermitHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export permits as CSV
// @Tags Permits
// @Produce text/csv
// @Param search query string false "Search term"
// @Param status query string false "Status filter"
// @Success 200 {file} file
// @Router /permits/export [get]
func (h *PermitHandler) Export(c *gin.Context) {
	out, err := h.service.Export(c.Request.Context(), permitFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("permits-%s.csv", time.Now().UTC().Format("20060102"))
	response.File(c, "text/csv", filename, out)
}

// Slip godoc
// @Summary Download permit slip
// @Tags Permits
// @Produce application/pdf
// @Param id path int true "Permit ID"
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /permits/{id}/slip [get]
func (h *PermitHandler) Slip(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.service.Slip(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "application/pdf", fmt.Sprintf("permit-%d.pdf", id), out)
}

func permitFilterFromQuery(c *gin.Context) models.PermitFilter {
	page, size := pageParams(c)
	filter := models.PermitFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      page,
		PageSize:  size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if status := c.Query("status"); status != "" {
		s := models.PermitStatus(strings.ToLower(status))
		filter.Status = &s
	}
	return filter
}
