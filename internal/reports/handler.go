package reports

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/auth"
	"blue-carbon-registry/portal-backend/internal/notifications/websocket"
)

// Handler handles HTTP requests for the report lifecycle
type Handler struct {
	service   *Service
	wsManager *websocket.Manager
	logger    *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, wsManager *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		wsManager: wsManager,
		logger:    logger,
	}
}

// RegisterRoutes registers report lifecycle routes. Every route requires a
// session; decision, queue, and export routes additionally require the
// administrator role.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, tokens *auth.TokenManager) {
	reports := router.Group("/reports")
	reports.Use(auth.Middleware(tokens))
	{
		reports.POST("", h.submitReport)
		reports.GET("", h.listReports)
		reports.GET("/dashboard/summary", h.getDashboardSummary)
		reports.GET("/:id", h.getReport)
		reports.GET("/:id/proofs", h.getProofLinks)
		reports.GET("/:id/certificate", h.getCertificate)

		admin := reports.Group("")
		admin.Use(auth.RequireAdmin())
		{
			admin.GET("/queue", h.getReviewQueue)
			admin.POST("/:id/decision", h.decideReport)
			admin.GET("/export", h.exportHistory)
		}
	}

	// Live pending-list subscription; the token travels as a query
	// parameter because browsers cannot set headers on websocket dials
	router.GET("/reports/watch", h.watchReports(tokens))
}

// =====================================================
// Submission
// =====================================================

// proof file form keys, by declared kind
var proofFormKeys = map[string]ProofKind{
	"photos":      ProofKindPhoto,
	"gps_files":   ProofKindGPS,
	"drone_files": ProofKindDrone,
}

// submitReport handles POST /api/v1/reports (multipart form)
func (h *Handler) submitReport(c *gin.Context) {
	identity, _ := auth.FromContext(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}

	draft, err := draftFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	staging := NewStaging()
	for key, kind := range proofFormKeys {
		inputs, err := readFormFiles(form.File[key])
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		staging.AddFiles(inputs, kind)
	}

	report, err := h.service.SubmitReport(c.Request.Context(), draft, staging, identity, func(fraction float64) {
		h.logger.Debug("Upload progress",
			zap.String("user_id", identity.ID),
			zap.Float64("fraction", fraction))
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, report)
}

func draftFromForm(c *gin.Context) (*ReportDraft, error) {
	area, err := strconv.ParseFloat(c.PostForm("area_covered"), 64)
	if err != nil {
		return nil, fmt.Errorf("area_covered must be a number")
	}
	credits, err := strconv.Atoi(c.PostForm("estimated_credits"))
	if err != nil {
		return nil, fmt.Errorf("estimated_credits must be an integer")
	}

	return &ReportDraft{
		Title:               c.PostForm("title"),
		ProjectName:         c.PostForm("project_name"),
		CommunityName:       c.PostForm("community_name"),
		ActivityType:        c.PostForm("activity_type"),
		AreaCovered:         area,
		LocationCoordinates: c.PostForm("location_coordinates"),
		Description:         c.PostForm("description"),
		GPSData:             c.PostForm("gps_data"),
		EstimatedCredits:    credits,
	}, nil
}

func readFormFiles(headers []*multipart.FileHeader) ([]FileInput, error) {
	inputs := make([]FileInput, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", header.Filename, err)
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Filename, err)
		}
		inputs = append(inputs, FileInput{
			Name:    header.Filename,
			Size:    header.Size,
			Content: content,
		})
	}
	return inputs, nil
}

// =====================================================
// Queries
// =====================================================

// listReports handles GET /api/v1/reports. Submitters see their own
// reports; administrators may list everything.
func (h *Handler) listReports(c *gin.Context) {
	identity, _ := auth.FromContext(c)

	filters := &ReportFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 20),
	}
	if status := c.Query("verification_status"); status != "" {
		vs := VerificationStatus(status)
		filters.VerificationStatus = &vs
	}
	if !identity.IsAdmin() {
		userID := identity.ID
		filters.UserID = &userID
	} else if userID := c.Query("user_id"); userID != "" {
		filters.UserID = &userID
	}

	response, err := h.service.ListReports(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// getReport handles GET /api/v1/reports/:id
func (h *Handler) getReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	identity, _ := auth.FromContext(c)
	if !identity.IsAdmin() && report.UserID != identity.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "report belongs to another user"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// getProofLinks handles GET /api/v1/reports/:id/proofs. It returns
// short-lived download links so owners and administrators can view the
// proof documents backing a report.
func (h *Handler) getProofLinks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	identity, _ := auth.FromContext(c)
	if !identity.IsAdmin() && report.UserID != identity.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "report belongs to another user"})
		return
	}

	links, err := h.service.ProofLinks(c.Request.Context(), report)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report_id": report.ID,
		"proofs":    links,
	})
}

// getReviewQueue handles GET /api/v1/reports/queue
func (h *Handler) getReviewQueue(c *gin.Context) {
	response, err := h.service.ListPending(c.Request.Context(),
		h.getIntParam(c, "page", 1),
		h.getIntParam(c, "page_size", 20))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// getDashboardSummary handles GET /api/v1/reports/dashboard/summary
func (h *Handler) getDashboardSummary(c *gin.Context) {
	summary, err := h.service.GetDashboardSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// =====================================================
// Lifecycle
// =====================================================

// decideReport handles POST /api/v1/reports/:id/decision
func (h *Handler) decideReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, _ := auth.FromContext(c)
	report, err := h.service.Decide(c.Request.Context(), id, &req, identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// =====================================================
// Exports
// =====================================================

// getCertificate handles GET /api/v1/reports/:id/certificate
func (h *Handler) getCertificate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	certificate, err := h.service.GetCertificate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=certificate-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", certificate)
}

// exportHistory handles GET /api/v1/reports/export
func (h *Handler) exportHistory(c *gin.Context) {
	workbook, err := h.service.ExportVerificationHistory(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=verification-history.xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
}

// =====================================================
// Live updates
// =====================================================

// watchReports upgrades GET /api/v1/reports/watch into a live report
// change subscription
func (h *Handler) watchReports(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		identity, err := tokens.ParseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		if _, err := h.wsManager.HandleConnection(c.Writer, c.Request, identity.ID); err != nil {
			h.logger.Error("Failed to upgrade watch connection", zap.Error(err))
		}
	}
}

// =====================================================
// Helpers
// =====================================================

func (h *Handler) respondError(c *gin.Context, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        validationErr.Error(),
			"field_errors": validationErr.FieldErrors,
		})
	case errors.Is(err, ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoProofFiles), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotApproved):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAlreadyDecided), errors.Is(err, ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) getIntParam(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return fallback
}
