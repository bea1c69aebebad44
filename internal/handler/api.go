package handler

import (
	"errors"
	"net/http"

	"github.com/mettafore/evals-workshop/internal/models"
	"github.com/mettafore/evals-workshop/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests
type Handler struct {
	workbench *service.Workbench
	logger    *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(workbench *service.Workbench, logger *zap.Logger) *Handler {
	return &Handler{
		workbench: workbench,
		logger:    logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/context", h.GetContext)
		api.POST("/labelers", h.CreateLabeler)
		api.GET("/email/:hash", h.GetEmailDetail)

		api.POST("/judgments", h.UpsertJudgment)
		api.DELETE("/judgments", h.DeleteJudgment)

		api.POST("/annotations", h.CreateAnnotation)
		api.PUT("/annotations/:id", h.UpdateAnnotation)
		api.DELETE("/annotations/:id", h.DeleteAnnotation)

		api.POST("/failure-modes", h.CreateFailureMode)
		api.GET("/failure-modes/suggest", h.SuggestFailureModes)

		api.POST("/axial-links", h.CreateAxialLink)
		api.DELETE("/axial-links", h.DeleteAxialLink)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoRuns), errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetContext returns the active run, its email ordering and the roster.
func (h *Handler) GetContext(c *gin.Context) {
	resp, err := h.workbench.GetContext(c.Query("run_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateLabeler provisions an annotator.
func (h *Handler) CreateLabeler(c *gin.Context) {
	var req models.CreateLabelerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	labeler, err := h.workbench.CreateLabeler(&req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, labeler)
}

// GetEmailDetail returns the composite payload for one email.
func (h *Handler) GetEmailDetail(c *gin.Context) {
	detail, err := h.workbench.GetEmailDetail(c.Param("hash"), c.Query("labeler_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// UpsertJudgment records or replaces a pass/fail verdict.
func (h *Handler) UpsertJudgment(c *gin.Context) {
	var req models.JudgmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	judgment, err := h.workbench.UpsertJudgment(&req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, judgment)
}

// DeleteJudgment removes a verdict.
func (h *Handler) DeleteJudgment(c *gin.Context) {
	emailHash := c.Query("email_hash")
	labelerID := c.Query("labeler_id")
	if emailHash == "" || labelerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_hash and labeler_id are required"})
		return
	}

	if err := h.workbench.DeleteJudgment(emailHash, labelerID); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// CreateAnnotation records an open code.
func (h *Handler) CreateAnnotation(c *gin.Context) {
	var req models.AnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ann, err := h.workbench.CreateAnnotation(&req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ann)
}

// UpdateAnnotation rewrites an annotation's text in place.
func (h *Handler) UpdateAnnotation(c *gin.Context) {
	var req models.AnnotationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ann, err := h.workbench.UpdateAnnotation(c.Param("id"), req.OpenCode)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ann)
}

// DeleteAnnotation removes an annotation and its links.
func (h *Handler) DeleteAnnotation(c *gin.Context) {
	annotationID := c.Param("id")

	if err := h.workbench.DeleteAnnotation(annotationID); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": annotationID})
}

// CreateFailureMode adds a taxonomy entry.
func (h *Handler) CreateFailureMode(c *gin.Context) {
	var req models.FailureModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fm, err := h.workbench.CreateFailureMode(&req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, fm)
}

// SuggestFailureModes proposes taxonomy entries for an email.
func (h *Handler) SuggestFailureModes(c *gin.Context) {
	emailHash := c.Query("email_hash")
	if emailHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_hash required"})
		return
	}

	suggestions, err := h.workbench.SuggestFailureModes(c.Request.Context(), emailHash)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuggestionsResponse{Suggestions: suggestions})
}

// CreateAxialLink attaches a failure mode to an annotation.
func (h *Handler) CreateAxialLink(c *gin.Context) {
	var req models.AxialLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.workbench.CreateAxialLink(&req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// DeleteAxialLink detaches one (annotation, failure mode) pair.
func (h *Handler) DeleteAxialLink(c *gin.Context) {
	annotationID := c.Query("annotation_id")
	failureModeID := c.Query("failure_mode_id")
	if annotationID == "" || failureModeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "annotation_id and failure_mode_id required"})
		return
	}

	if err := h.workbench.DeleteAxialLink(annotationID, failureModeID); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "annotation-workbench",
		"version": "1.0.0",
	})
}
