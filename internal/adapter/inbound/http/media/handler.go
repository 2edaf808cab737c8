package mediahttp

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/canvasflow/server/internal/domain/media"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/inbound"
	"github.com/canvasflow/server/internal/shared/logger"
	apperrors "github.com/canvasflow/server/internal/utils/errors"
)

// DefaultMaxBodyBytes caps a request body; data URIs make bodies large.
const DefaultMaxBodyBytes = 64 << 20

// ContentDirs maps a content URL prefix to the directory serving each media kind.
type ContentDirs interface {
	URLPrefix() string
	Dir(kind model.MediaKind) string
}

// Handler handles generation HTTP requests.
type Handler struct {
	domain       inbound.MediaDomain
	maxBodyBytes int64
}

// NewHandler creates a new generation handler.
func NewHandler(domain inbound.MediaDomain, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{domain: domain, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes registers generation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/generations")
	{
		g.POST("/images", h.GenerateImage)
		g.POST("/videos", h.GenerateVideo)
		g.GET("/:id/status", h.GetGenerationStatus)
		g.DELETE("/:id", h.DeleteGeneration)
	}
}

// RegisterContentRoutes serves materialized blobs, e.g. GET /content/images/{filename}.
func RegisterContentRoutes(r gin.IRoutes, dirs ContentDirs) {
	for _, kind := range model.MediaKinds() {
		r.Static(path.Join(dirs.URLPrefix(), kind.Dir()), dirs.Dir(kind))
	}
}

// GenerateImage handles image generation requests.
func (h *Handler) GenerateImage(c *gin.Context) {
	h.generate(c, model.MediaKindImage, h.domain.GenerateImage)
}

// GenerateVideo handles video generation requests.
func (h *Handler) GenerateVideo(c *gin.Context) {
	h.generate(c, model.MediaKindVideo, h.domain.GenerateVideo)
}

type generateFunc func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationOutput, error)

func (h *Handler) generate(c *gin.Context, kind model.MediaKind, fn generateFunc) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var input inbound.GenerationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperrors.NewAppError("BODY_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err).
				WithDetails(map[string]any{"max_bytes": h.maxBodyBytes}))
			return
		}
		respondError(c, apperrors.BadRequest(err.Error()))
		return
	}

	output, err := fn(c.Request.Context(), input.ToRequest(kind))
	if err != nil {
		handleMediaError(c, err)
		return
	}

	c.JSON(http.StatusOK, output)
}

// GetGenerationStatus handles status recovery requests.
func (h *Handler) GetGenerationStatus(c *gin.Context) {
	report, err := h.domain.CheckGenerationStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleMediaError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// DeleteGeneration handles deletion requests.
func (h *Handler) DeleteGeneration(c *gin.Context) {
	if err := h.domain.DeleteGeneration(c.Request.Context(), c.Param("id")); err != nil {
		handleMediaError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Request validation errors raised by the domain before any provider call.
var validationErrors = []error{
	media.ErrInvalidCorrelationID,
	media.ErrInvalidKind,
	media.ErrEmptyModel,
	media.ErrEmptyPrompt,
	media.ErrTooManyVariations,
}

func handleMediaError(c *gin.Context, err error) {
	_ = c.Error(err)

	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("generation request failed",
			"code", appErr.Code,
			"path", c.Request.URL.Path,
			logger.Err(err))
	}
	respondError(c, appErr)
}

func toAppError(err error) *apperrors.AppError {
	if apperrors.IsNotFound(err) {
		return apperrors.NotFound("generation").WithError(err)
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return apperrors.BadRequest(err.Error()).WithError(err)
		}
	}
	if appErr := apperrors.FromGeneration(err); appErr != nil {
		return appErr
	}
	return apperrors.Internal("", err)
}

func respondError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

// Compile-time interface check
var _ inbound.MediaHttpPort = (*Handler)(nil)
