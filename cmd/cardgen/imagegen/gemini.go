package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/skylens/weathercard/common/clients"
	"github.com/skylens/weathercard/common/config"
	"github.com/skylens/weathercard/common/logger"
)

// ErrNoImage is returned when a generation response carries no image
// payload. A text-only "success" from the model is still a failure for
// the pipeline: a run either has a real image or it failed.
var ErrNoImage = errors.New("no image in generation response")

// Result is a generated image with its declared mime type and the model
// that produced it
type Result struct {
	Image    []byte `json:"image"`
	MimeType string `json:"mime_type"`
	Model    string `json:"model"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []tool            `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

// Client calls the Gemini generateContent API for card images
type Client struct {
	http *clients.HTTPClient
	cfg  config.ImageGenConfig
	log  *logger.Logger
}

// NewClient creates an image generation client
func NewClient(cfg config.ImageGenConfig, log *logger.Logger) *Client {
	return &Client{
		http: clients.NewHTTPClient(&http.Client{Timeout: cfg.Timeout}, log),
		cfg:  cfg,
		log:  log,
	}
}

// Generate renders an image for a prompt. Requests both IMAGE and TEXT
// modalities and enables the search grounding tool so the model can look
// up live weather.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)

	req := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
		Tools: []tool{{GoogleSearch: &struct{}{}}},
	}

	var resp generateResponse
	hdr := map[string]string{"x-goog-api-key": c.cfg.APIKey}
	if err := c.http.PostJSON(ctx, url, hdr, &req, &resp); err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	return extractImage(&resp, c.cfg.Model)
}

// extractImage pulls the first inline image out of a response
func extractImage(resp *generateResponse, model string) (*Result, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}

		mime := p.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}

		return &Result{Image: raw, MimeType: mime, Model: model}, nil
	}

	return nil, ErrNoImage
}
