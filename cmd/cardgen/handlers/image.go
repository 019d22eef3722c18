package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/cmd/cardgen/imagetoken"
	"github.com/skylens/weathercard/common/blobstore"
	"github.com/skylens/weathercard/common/logger"
)

// ImageHandler proxies stored card images from the blob store
type ImageHandler struct {
	blobs  blobstore.Store
	secret string
	log    *logger.Logger
}

// NewImageHandler creates an image handler. When secret is non-empty,
// requests from outside the site must carry a valid signed token.
func NewImageHandler(blobs blobstore.Store, secret string, log *logger.Logger) *ImageHandler {
	return &ImageHandler{blobs: blobs, secret: secret, log: log}
}

// GetImage streams one stored image
// GET /api/v1/images/cards/2026-08-31-hangzhou-01ABC.png?token=...
func (h *ImageHandler) GetImage(c echo.Context) error {
	key := c.Param("*")
	if key == "" || strings.Contains(key, "..") {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid image key",
		})
	}

	if !h.authorized(c, key) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": "access denied",
		})
	}

	obj, info, err := h.blobs.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "image not found",
			})
		}
		h.log.Error("failed to fetch image", "key", key, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch image",
		})
	}
	defer obj.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	// Keys embed the run ID, so content never changes under a key.
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if info.ETag != "" {
		c.Response().Header().Set("ETag", info.ETag)
	}
	return c.Stream(http.StatusOK, contentType, obj)
}

// authorized allows same-site requests by Referer, and everything else
// only with a valid signed token. With no secret configured all reads
// are public.
func (h *ImageHandler) authorized(c echo.Context, key string) bool {
	if h.secret == "" {
		return true
	}
	if referer := c.Request().Referer(); referer != "" {
		if ref, err := url.Parse(referer); err == nil && ref.Host == c.Request().Host {
			return true
		}
	}
	return imagetoken.Verify(key, c.QueryParam("token"), h.secret)
}
