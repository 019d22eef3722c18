package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/cmd/cardgen/imagetoken"
	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/common/logger"
)

// CardLister reads the public gallery feed
type CardLister interface {
	FindCards(ctx context.Context, page, limit int) (*models.RunPage, error)
}

// CardHandler serves the public card gallery
type CardHandler struct {
	runs        CardLister
	imageSecret string
	log         *logger.Logger
}

// NewCardHandler creates a card handler
func NewCardHandler(runs CardLister, imageSecret string, log *logger.Logger) *CardHandler {
	return &CardHandler{runs: runs, imageSecret: imageSecret, log: log}
}

// cardView is one gallery entry. Only succeeded runs with a stored
// image appear here.
type cardView struct {
	*models.Run
	ImageURL string `json:"image_url,omitempty"`
}

// ListCards returns a page of generated cards, newest first
// GET /api/v1/cards?page=1&limit=20
func (h *CardHandler) ListCards(c echo.Context) error {
	page := intParam(c, "page", 1)
	limit := intParam(c, "limit", 20)
	if limit > 50 {
		limit = 50
	}
	if limit < 1 {
		limit = 1
	}

	result, err := h.runs.FindCards(c.Request().Context(), page, limit)
	if err != nil {
		h.log.Error("failed to list cards", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list cards",
		})
	}

	cards := make([]cardView, 0, len(result.Runs))
	for _, run := range result.Runs {
		cards = append(cards, cardView{Run: run, ImageURL: h.imageURL(run)})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"cards": cards,
		"total": result.Total,
		"page":  result.Page,
		"limit": result.Limit,
	})
}

// imageURL builds the proxy URL for a card image, signed when token
// protection is configured
func (h *CardHandler) imageURL(run *models.Run) string {
	if run.ImageKey == nil {
		return ""
	}
	url := "/api/v1/images/" + *run.ImageKey
	if h.imageSecret != "" {
		url += "?token=" + imagetoken.Create(*run.ImageKey, h.imageSecret, imagetoken.DefaultExpiry)
	}
	return url
}

// intParam parses a positive integer query parameter with a default
func intParam(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
