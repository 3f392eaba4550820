package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snipapp/snip-server/internal/middleware"
	"github.com/snipapp/snip-server/internal/repository"
	"github.com/snipapp/snip-server/internal/service"
	"github.com/snipapp/snip-server/internal/shortcode"
)

// LinkHandler serves the owner-scoped link CRUD API.
type LinkHandler struct {
	svc    *service.LinkService
	logger *zap.Logger
}

func NewLinkHandler(svc *service.LinkService) *LinkHandler {
	return &LinkHandler{
		svc:    svc,
		logger: zap.L().Named("LinkHandler"),
	}
}

type createLinkRequest struct {
	OriginalURL    string     `json:"originalUrl" binding:"required"`
	CustomCode     string     `json:"customCode"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	Password       string     `json:"password"`
	RequirePreview bool       `json:"requirePreview"`
	Tags           []string   `json:"tags"`
	Folder         string     `json:"folder"`
}

func (h *LinkHandler) Create(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Original URL is required",
			Code:  "INVALID_PAYLOAD",
		})
		return
	}

	link, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), service.CreateLinkInput{
		OriginalURL:    req.OriginalURL,
		CustomCode:     req.CustomCode,
		ExpiresAt:      req.ExpiresAt,
		Password:       req.Password,
		RequirePreview: req.RequirePreview,
		Tags:           req.Tags,
		Folder:         req.Folder,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"link": link})
}

type bulkCreateRequest struct {
	URLs   []string `json:"urls" binding:"required"`
	Folder string   `json:"folder"`
	Tags   []string `json:"tags"`
}

func (h *LinkHandler) BulkCreate(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Please provide an array of URLs",
			Code:  "INVALID_PAYLOAD",
		})
		return
	}

	results, err := h.svc.BulkCreate(c.Request.Context(), middleware.UserID(c), req.URLs, req.Folder, req.Tags)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"results": results})
}

func (h *LinkHandler) List(c *gin.Context) {
	filter := repository.LinkFilter{
		Folder: c.Query("folder"),
		Tag:    c.Query("tag"),
		Search: c.Query("search"),
	}

	result, err := h.svc.List(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LinkHandler) Get(c *gin.Context) {
	link, err := h.svc.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

type updateLinkRequest struct {
	IsActive       *bool      `json:"isActive"`
	RequirePreview *bool      `json:"requirePreview"`
	Tags           []string   `json:"tags"`
	Folder         *string    `json:"folder"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	ClearExpiresAt bool       `json:"clearExpiresAt"`
	Password       *string    `json:"password"`
	CustomCode     *string    `json:"customCode"`
}

func (h *LinkHandler) Update(c *gin.Context) {
	var req updateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request payload",
			Code:  "INVALID_PAYLOAD",
		})
		return
	}

	link, err := h.svc.Update(c.Request.Context(), c.Param("id"), middleware.UserID(c), service.LinkPatch{
		IsActive:       req.IsActive,
		RequirePreview: req.RequirePreview,
		Tags:           req.Tags,
		Folder:         req.Folder,
		ExpiresAt:      req.ExpiresAt,
		ClearExpiresAt: req.ClearExpiresAt,
		Password:       req.Password,
		CustomCode:     req.CustomCode,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link})
}

func (h *LinkHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

func (h *LinkHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Link not found",
			Code:  "LINK_NOT_FOUND",
		})
	case errors.Is(err, repository.ErrCodeTaken):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "That alias is already taken",
			Code:  "CODE_TAKEN",
		})
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Please provide a valid URL",
			Code:  "INVALID_URL",
		})
	case errors.Is(err, shortcode.ErrInvalidLength), errors.Is(err, shortcode.ErrInvalidCharset):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid alias",
			Code:    "INVALID_ALIAS",
			Details: err.Error(),
		})
	case errors.Is(err, service.ErrCodeGenerationMax):
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "CODE_GENERATION_FAILED",
		})
	default:
		h.logger.Error("Unexpected service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
