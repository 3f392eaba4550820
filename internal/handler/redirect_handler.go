package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snipapp/snip-server/internal/model"
	"github.com/snipapp/snip-server/internal/repository"
	"github.com/snipapp/snip-server/internal/service"
	"github.com/snipapp/snip-server/internal/shortcode"
)

// RedirectHandler serves the public resolution surface: the catch-all
// short-code redirect plus the info/verify/preview endpoints the frontend
// interactive pages call.
type RedirectHandler struct {
	resolver  *service.ResolveService
	clientURL string
	logger    *zap.Logger
}

func NewRedirectHandler(resolver *service.ResolveService, clientURL string) *RedirectHandler {
	return &RedirectHandler{
		resolver:  resolver,
		clientURL: strings.TrimSuffix(clientURL, "/"),
		logger:    zap.L().Named("RedirectHandler"),
	}
}

func clickMeta(c *gin.Context) model.ClickMeta {
	return model.ClickMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	}
}

// Info handles GET /r/info/:code — the flags a preview/password page
// needs. The destination URL is never part of this response.
func (h *RedirectHandler) Info(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))

	info, err := h.resolver.PublicInfo(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type verifyRequest struct {
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Verify handles POST /r/verify — password check for a protected link.
func (h *RedirectHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Code and password are required",
			Code:  "INVALID_PAYLOAD",
		})
		return
	}

	resolution, err := h.resolver.VerifyPassword(c.Request.Context(), req.Code, req.Password, clickMeta(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"originalUrl": resolution.OriginalURL})
}

type previewRequest struct {
	Code string `json:"code" binding:"required"`
}

// Preview handles POST /r/preview — explicit confirmation from the
// preview page.
func (h *RedirectHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Code is required",
			Code:  "INVALID_PAYLOAD",
		})
		return
	}

	resolution, err := h.resolver.ConfirmPreview(c.Request.Context(), req.Code, clickMeta(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"originalUrl": resolution.OriginalURL})
}

// Redirect handles GET /:code — the catch-all short-link path. Interactive
// links bounce to the frontend; terminal failures render inline pages.
func (h *RedirectHandler) Redirect(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if shortcode.Validate(code) != nil {
		h.errorPage(c, http.StatusNotFound, "Link Not Found", "This short link doesn't exist.")
		return
	}

	resolution, err := h.resolver.Resolve(c.Request.Context(), code, clickMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			h.errorPage(c, http.StatusNotFound, "Link Not Found", "This short link doesn't exist.")
		case errors.Is(err, service.ErrLinkInactive):
			h.errorPage(c, http.StatusGone, "Link Inactive", "This link has been deactivated.")
		case errors.Is(err, service.ErrLinkExpired):
			h.errorPage(c, http.StatusGone, "Link Expired", "This link has expired and is no longer active.")
		default:
			h.logger.Error("Resolution failed", zap.Error(err), zap.String("code", code))
			h.errorPage(c, http.StatusInternalServerError, "Something Went Wrong", "Please try again later.")
		}
		return
	}

	switch resolution.Outcome {
	case service.OutcomeNeedsPassword:
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/preview/%s?protected=1", h.clientURL, code))
	case service.OutcomeNeedsPreview:
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/preview/%s", h.clientURL, code))
	default:
		c.Redirect(http.StatusFound, resolution.OriginalURL)
	}
}

func (h *RedirectHandler) errorPage(c *gin.Context, status int, title, message string) {
	page := fmt.Sprintf(`<html><body style="font-family:sans-serif;text-align:center;padding:60px">
  <h2>%s</h2>
  <p>%s</p>
  <a href="%s">Go to Snip</a>
</body></html>`, title, message, h.clientURL)
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}

func (h *RedirectHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Link not found",
			Code:  "LINK_NOT_FOUND",
		})
	case errors.Is(err, service.ErrLinkInactive):
		c.JSON(http.StatusGone, ErrorResponse{
			Error: "Link is inactive",
			Code:  "LINK_INACTIVE",
		})
	case errors.Is(err, service.ErrLinkExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Error: "Link has expired",
			Code:  "LINK_EXPIRED",
		})
	case errors.Is(err, service.ErrNotProtected):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "This link is not password protected",
			Code:  "NOT_PROTECTED",
		})
	case errors.Is(err, service.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Incorrect password",
			Code:  "WRONG_PASSWORD",
		})
	case errors.Is(err, service.ErrPasswordRequired):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "This link requires a password",
			Code:  "PASSWORD_REQUIRED",
		})
	default:
		h.logger.Error("Unexpected resolution error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
