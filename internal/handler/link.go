package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/middleware"
	"github.com/tamamhuda/envlink-api-sub000/internal/service"
)

type LinkHandler struct {
	service *service.LinkService
	baseURL string
}

func NewLinkHandler(service *service.LinkService, baseURL string) *LinkHandler {
	return &LinkHandler{service: service, baseURL: baseURL}
}

func (h *LinkHandler) Shorten(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ownerID *uuid.UUID
	if ident := middleware.CurrentIdentity(c); ident != nil {
		ownerID = &ident.ID
	}

	ctx := c.Request.Context()
	link, err := h.service.Shorten(ctx, req.URL, ownerID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTargetURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"link":      link,
		"short_url": h.baseURL + "/" + link.ShortCode,
	})
}

// Redirect handles GET /:code. The route skips throttling: redirects are the
// product, not an abuse surface worth a store round trip.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	ctx := c.Request.Context()
	target, err := h.service.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Redirect(http.StatusMovedPermanently, target)
}

func (h *LinkHandler) List(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)
	if ident == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx := c.Request.Context()
	links, err := h.service.List(ctx, ident.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, links)
}

func (h *LinkHandler) Delete(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)
	if ident == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid link ID"})
		return
	}

	ctx := c.Request.Context()
	if err := h.service.Delete(ctx, id, ident.ID); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}
