package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skylens/weathercard/common/config"
	"github.com/skylens/weathercard/common/logger"
)

func testGeminiClient(srv *httptest.Server) *Client {
	return NewClient(config.ImageGenConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gemini-3-pro-image-preview",
		Timeout: 5 * time.Second,
	}, logger.New("error", "json"))
}

// TestGenerate verifies the request shape and that inline image data is
// decoded from the response
func TestGenerate(t *testing.T) {
	imageBytes := []byte("fake-png-bytes")
	var gotPath, gotKey string
	var gotReq generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{"text": "here is your card"},
						{"inlineData": map[string]string{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(imageBytes),
						}},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	result, err := testGeminiClient(srv).Generate(context.Background(), "draw a card")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if gotPath != "/v1beta/models/gemini-3-pro-image-preview:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "draw a card" {
		t.Errorf("unexpected request contents: %+v", gotReq.Contents)
	}
	if gotReq.GenerationConfig == nil || len(gotReq.GenerationConfig.ResponseModalities) != 2 {
		t.Errorf("expected IMAGE+TEXT modalities, got %+v", gotReq.GenerationConfig)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].GoogleSearch == nil {
		t.Errorf("expected search grounding tool, got %+v", gotReq.Tools)
	}

	if string(result.Image) != string(imageBytes) {
		t.Errorf("decoded image mismatch")
	}
	if result.MimeType != "image/png" {
		t.Errorf("expected image/png, got %s", result.MimeType)
	}
	if result.Model != "gemini-3-pro-image-preview" {
		t.Errorf("unexpected model %s", result.Model)
	}
}

// TestGenerateTextOnlyIsNoImage verifies a text-only response is
// treated as a failure
func TestGenerateTextOnlyIsNoImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]interface{}{{"text": "sorry, no image today"}},
				},
			}},
		})
	}))
	defer srv.Close()

	_, err := testGeminiClient(srv).Generate(context.Background(), "draw a card")
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
}

// TestExtractImage covers empty candidates, missing mime default and
// bad base64
func TestExtractImage(t *testing.T) {
	if _, err := extractImage(&generateResponse{}, "m"); !errors.Is(err, ErrNoImage) {
		t.Errorf("empty response: expected ErrNoImage, got %v", err)
	}

	resp := &generateResponse{}
	resp.Candidates = append(resp.Candidates, struct {
		Content *content `json:"content"`
	}{Content: &content{Parts: []part{{InlineData: &inlineData{
		Data: base64.StdEncoding.EncodeToString([]byte("x")),
	}}}}})
	result, err := extractImage(resp, "m")
	if err != nil {
		t.Fatalf("extractImage failed: %v", err)
	}
	if result.MimeType != "image/png" {
		t.Errorf("expected mime default image/png, got %s", result.MimeType)
	}

	resp.Candidates[0].Content.Parts[0].InlineData.Data = "not-base64!!!"
	if _, err := extractImage(resp, "m"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
