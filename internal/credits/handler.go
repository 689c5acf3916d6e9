package credits

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the credit ledger
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new credits handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers ledger routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	ledger := router.Group("/credits")
	{
		ledger.GET("", h.listEntries)
		ledger.GET("/summary", h.getSummary)
	}
}

// listEntries handles GET /api/v1/credits
func (h *Handler) listEntries(c *gin.Context) {
	filters := &LedgerFilters{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if issuedTo := c.Query("issued_to"); issuedTo != "" {
		filters.IssuedTo = &issuedTo
	}

	entries, total, err := h.service.ListEntries(c.Request.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list ledger entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"total":     total,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

// getSummary handles GET /api/v1/credits/summary
func (h *Handler) getSummary(c *gin.Context) {
	summary, err := h.service.GetSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate ledger summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
