package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/skylens/weathercard/cmd/cardgen/imagetoken"
	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/cmd/cardgen/repository"
	"github.com/skylens/weathercard/common/blobstore"
	"github.com/skylens/weathercard/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func strPtr(s string) *string { return &s }

// mockRunStore implements CardLister and RunReader over a fixed slice
type mockRunStore struct {
	runs    []*models.Run
	deleted []string

	lastPage  int
	lastLimit int
}

func (m *mockRunStore) FindCards(ctx context.Context, page, limit int) (*models.RunPage, error) {
	m.lastPage, m.lastLimit = page, limit
	return &models.RunPage{Runs: m.runs, Total: len(m.runs), Page: page, Limit: limit}, nil
}

func (m *mockRunStore) FindPage(ctx context.Context, filter models.RunFilter, page, limit int) (*models.RunPage, error) {
	m.lastPage, m.lastLimit = page, limit
	matched := make([]*models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		matched = append(matched, r)
	}
	return &models.RunPage{Runs: matched, Total: len(matched), Page: page, Limit: limit}, nil
}

func (m *mockRunStore) GetByID(ctx context.Context, runID string) (*models.Run, error) {
	for _, r := range m.runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, repository.ErrRunNotFound
}

func (m *mockRunStore) Delete(ctx context.Context, runID string) error {
	for _, r := range m.runs {
		if r.RunID == runID {
			m.deleted = append(m.deleted, runID)
			return nil
		}
	}
	return repository.ErrRunNotFound
}

type mockStepCleaner struct {
	cleaned []string
}

func (m *mockStepCleaner) DeleteForRun(ctx context.Context, runID string) error {
	m.cleaned = append(m.cleaned, runID)
	return nil
}

// mockBlobs serves fixed objects
type mockBlobs struct {
	objects map[string][]byte
}

func (m *mockBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = data
	return nil
}

func (m *mockBlobs) Get(ctx context.Context, key string) (io.ReadCloser, blobstore.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, blobstore.ObjectInfo{}, blobstore.ErrNotFound
	}
	info := blobstore.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: "image/png", ETag: "abc123"}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (m *mockBlobs) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func succeededRun(runID, key string) *models.Run {
	return &models.Run{
		RunID:    runID,
		City:     "杭州市",
		Status:   models.StatusSucceeded,
		ImageKey: strPtr(key),
	}
}

// TestListCards verifies pagination parsing, the limit cap, and signed
// image URLs when a secret is configured
func TestListCards(t *testing.T) {
	store := &mockRunStore{runs: []*models.Run{succeededRun("01A", "cards/2026-08-31-hangzhou-01A.png")}}
	h := NewCardHandler(store, "img-secret", testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cards?page=2&limit=999", nil)
	rec := httptest.NewRecorder()
	if err := h.ListCards(e.NewContext(req, rec)); err != nil {
		t.Fatalf("ListCards failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastPage != 2 || store.lastLimit != 50 {
		t.Errorf("expected page=2 limit capped to 50, got page=%d limit=%d", store.lastPage, store.lastLimit)
	}

	var body struct {
		Cards []struct {
			RunID    string `json:"run_id"`
			ImageURL string `json:"image_url"`
		} `json:"cards"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Total != 1 || len(body.Cards) != 1 {
		t.Fatalf("expected 1 card, got %+v", body)
	}
	url := body.Cards[0].ImageURL
	if !strings.HasPrefix(url, "/api/v1/images/cards/2026-08-31-hangzhou-01A.png?token=") {
		t.Errorf("expected signed image url, got %q", url)
	}
	token := url[strings.Index(url, "token=")+len("token="):]
	if !imagetoken.Verify("cards/2026-08-31-hangzhou-01A.png", token, "img-secret") {
		t.Errorf("embedded token does not verify: %q", token)
	}
}

// TestListLogsStatusFilter verifies the status filter and rejection of
// unknown values
func TestListLogsStatusFilter(t *testing.T) {
	failed := &models.Run{RunID: "01B", Status: models.StatusFailed}
	store := &mockRunStore{runs: []*models.Run{succeededRun("01A", "k"), failed}}
	h := NewLogHandler(store, &mockStepCleaner{}, &mockBlobs{objects: map[string][]byte{}}, testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs?status=failed", nil)
	rec := httptest.NewRecorder()
	if err := h.ListLogs(e.NewContext(req, rec)); err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	var body struct {
		Logs  []json.RawMessage `json:"logs"`
		Total int               `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 failed run, got %d", body.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/logs?status=bogus", nil)
	rec = httptest.NewRecorder()
	h.ListLogs(e.NewContext(req, rec))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
}

// TestDeleteLog verifies step, image, and row cleanup, and 404 for
// unknown runs
func TestDeleteLog(t *testing.T) {
	store := &mockRunStore{runs: []*models.Run{succeededRun("01A", "k")}}
	steps := &mockStepCleaner{}
	blobs := &mockBlobs{objects: map[string][]byte{"k": []byte("png")}}
	h := NewLogHandler(store, steps, blobs, testLogger())
	e := echo.New()

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/logs/:run_id")
	c.SetParamNames("run_id")
	c.SetParamValues("01A")
	if err := h.DeleteLog(c); err != nil {
		t.Fatalf("DeleteLog failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(steps.cleaned) != 1 || steps.cleaned[0] != "01A" {
		t.Errorf("expected step cleanup for 01A, got %v", steps.cleaned)
	}
	if len(store.deleted) != 1 {
		t.Errorf("expected run deleted, got %v", store.deleted)
	}
	if _, ok := blobs.objects["k"]; ok {
		t.Error("expected stored image removed")
	}

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetPath("/api/v1/logs/:run_id")
	c.SetParamNames("run_id")
	c.SetParamValues("missing")
	h.DeleteLog(c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown run, got %d", rec.Code)
	}
}

// TestGetLog verifies run detail lookup and 404 for unknown ids
func TestGetLog(t *testing.T) {
	store := &mockRunStore{runs: []*models.Run{succeededRun("01A", "k")}}
	h := NewLogHandler(store, &mockStepCleaner{}, &mockBlobs{objects: map[string][]byte{}}, testLogger())
	e := echo.New()

	for _, tc := range []struct {
		runID string
		want  int
	}{
		{"01A", http.StatusOK},
		{"missing", http.StatusNotFound},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/v1/logs/:run_id")
		c.SetParamNames("run_id")
		c.SetParamValues(tc.runID)
		if err := h.GetLog(c); err != nil {
			t.Fatalf("GetLog failed: %v", err)
		}
		if rec.Code != tc.want {
			t.Errorf("GetLog(%s): expected %d, got %d", tc.runID, tc.want, rec.Code)
		}
	}
}

func imageRequest(t *testing.T, h *ImageHandler, key, query, referer string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	url := "/api/v1/images/" + key
	if query != "" {
		url += "?" + query
	}
	req := httptest.NewRequest(http.MethodGet, url, nil)
	req.Host = "cards.example.com"
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/images/*")
	c.SetParamNames("*")
	c.SetParamValues(key)
	if err := h.GetImage(c); err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	return rec
}

// TestGetImage covers token auth, same-site referer bypass, and 404
func TestGetImage(t *testing.T) {
	key := "cards/2026-08-31-hangzhou-01A.png"
	blobs := &mockBlobs{objects: map[string][]byte{key: []byte("png-bytes")}}
	h := NewImageHandler(blobs, "img-secret", testLogger())

	// no credential
	if rec := imageRequest(t, h, key, "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without token, got %d", rec.Code)
	}

	// valid token
	token := imagetoken.Create(key, "img-secret", imagetoken.DefaultExpiry)
	rec := imageRequest(t, h, key, "token="+token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("expected immutable cache header, got %q", cc)
	}

	// same-site referer, no token
	rec = imageRequest(t, h, key, "", "https://cards.example.com/gallery")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for same-site referer, got %d", rec.Code)
	}

	// hotlink from elsewhere
	rec = imageRequest(t, h, key, "", "https://evil.example.net/")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign referer, got %d", rec.Code)
	}

	// missing object with valid token
	missingToken := imagetoken.Create("cards/missing.png", "img-secret", imagetoken.DefaultExpiry)
	rec = imageRequest(t, h, "cards/missing.png", "token="+missingToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing object, got %d", rec.Code)
	}

	// path traversal
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/images/x", nil)
	recorder := httptest.NewRecorder()
	c := e.NewContext(req, recorder)
	c.SetParamNames("*")
	c.SetParamValues("../secrets")
	h.GetImage(c)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for traversal key, got %d", recorder.Code)
	}
}

// mockLauncher records launches
type mockLauncher struct {
	cities []string
}

func (m *mockLauncher) Launch(city string) string {
	m.cities = append(m.cities, city)
	return "01RUNID"
}

// TestTrigger verifies the 202 fire-and-forget contract
func TestTrigger(t *testing.T) {
	launcher := &mockLauncher{}
	h := NewTriggerHandler(launcher, testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trigger?city=杭州", nil)
	rec := httptest.NewRecorder()
	if err := h.Trigger(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	var body struct {
		RunID string `json:"run_id"`
		City  string `json:"city"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.RunID != "01RUNID" || body.City != "杭州" {
		t.Errorf("unexpected body %+v", body)
	}
	if len(launcher.cities) != 1 || launcher.cities[0] != "杭州" {
		t.Errorf("expected launch with 杭州, got %v", launcher.cities)
	}
}
