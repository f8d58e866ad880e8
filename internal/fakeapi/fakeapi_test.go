package fakeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/me/creativeapis/pkg/apierr"
	"github.com/me/creativeapis/pkg/picsart"
)

const testKey = "secret-key-0042"

func testServer(opts ...Option) *Server {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(logger, append([]Option{WithAPIKey(testKey)}, opts...)...)
}

func multipartBody(t *testing.T, fields map[string]string, withFile bool) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if withFile {
		fw, err := mw.CreateFormFile("image", "cat.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("X-Picsart-API-Key", testKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	srv := testServer()
	tests := []struct {
		name string
		keys []string
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", []string{"nope"}, http.StatusUnauthorized},
		{"duplicated", []string{testKey, testKey}, http.StatusUnauthorized},
		{"valid", []string{testKey}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/balance", nil)
			for _, k := range tt.keys {
				req.Header.Add("X-Picsart-API-Key", k)
			}
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if w.Header().Get("X-Picsart-Correlation-Id") == "" {
				t.Error("missing correlation id")
			}
		})
	}
}

func TestImageEndpoint(t *testing.T) {
	srv := testServer()
	body, ct := multipartBody(t, map[string]string{"format": "JPG"}, true)
	req := httptest.NewRequest(http.MethodPost, "/removebg", body)
	req.Header.Set("Content-Type", ct)
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		Status string    `json:"status"`
		Data   imageData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "success" || got.Data.ID == "" {
		t.Errorf("unexpected body %+v", got)
	}
	if !strings.HasSuffix(got.Data.URL, "/cdn/"+got.Data.ID+".jpg") {
		t.Errorf("url = %q", got.Data.URL)
	}
	if w.Header().Get("X-Picsart-Credit-Available") != "99" {
		t.Errorf("credits header = %q", w.Header().Get("X-Picsart-Credit-Available"))
	}
}

func TestImageEndpoint_SourceRequired(t *testing.T) {
	srv := testServer()
	tests := []struct {
		name   string
		fields map[string]string
		file   bool
	}{
		{"none", map[string]string{}, false},
		{"two", map[string]string{"image_url": "https://example.com/a.png"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.file)
			req := httptest.NewRequest(http.MethodPost, "/upscale", body)
			req.Header.Set("Content-Type", ct)
			if w := do(t, srv, req); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestInjectedFailures(t *testing.T) {
	srv := testServer(WithFailures(http.StatusTooManyRequests, http.StatusBadGateway))
	var got []int
	for range 3 {
		w := do(t, srv, httptest.NewRequest(http.MethodGet, "/balance", nil))
		got = append(got, w.Code)
	}
	if diff := cmp.Diff([]int{429, 502, 200}, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestCreditsExhausted(t *testing.T) {
	srv := testServer(WithCredits(1))
	for i, want := range []int{http.StatusOK, http.StatusPaymentRequired} {
		body, ct := multipartBody(t, map[string]string{"image_id": "x"}, false)
		req := httptest.NewRequest(http.MethodPost, "/surfacemap", body)
		req.Header.Set("Content-Type", ct)
		if w := do(t, srv, req); w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, want)
		}
	}
	if srv.Credits() != 0 {
		t.Errorf("credits = %v", srv.Credits())
	}
}

func TestCDN(t *testing.T) {
	srv := testServer()
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cdn/abc.png", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, content type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
	if srv.Requests() != 0 {
		t.Errorf("cdn download counted as API request")
	}
}

// The remaining tests drive the server through the SDK client.

func newClient(t *testing.T, srv *Server) *picsart.Client {
	t.Helper()
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	cfg := picsart.DefaultConfig().WithAPIKey(testKey).WithBaseURLs(hs.URL, hs.URL).WithTimeout(5 * time.Second)
	fast := picsart.PollConfig{FirstDelay: time.Millisecond, Interval: time.Millisecond, MaxPolls: 10}
	cfg.Text2ImagePolling = fast
	cfg.UltraUpscalePolling = fast
	c, err := picsart.NewClient(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Upload(t *testing.T) {
	c := newClient(t, testServer())
	res, err := c.Image().Upload(picsart.UploadParams{
		Image: picsart.ImageBytes("cat.png", []byte("\x89PNG\r\n\x1a\n")),
	}).Do(context.Background())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Image.ID == "" || res.Metadata.CorrelationID == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Metadata.CreditsAvailable == nil || *res.Metadata.CreditsAvailable != 99 {
		t.Errorf("credits = %v", res.Metadata.CreditsAvailable)
	}
}

func TestClient_RateLimited(t *testing.T) {
	c := newClient(t, testServer(WithFailures(http.StatusTooManyRequests)))
	_, err := c.Image().Balance().Do(context.Background())
	var e *apierr.Error
	if !errors.As(err, &e) || e.Kind != apierr.KindRateLimit {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if e.RetryAfter != time.Second {
		t.Errorf("retry after = %v", e.RetryAfter)
	}
}

func TestClient_RetryRecovers(t *testing.T) {
	srv := testServer(WithFailures(http.StatusServiceUnavailable))
	c := newClient(t, srv)
	p := picsart.DefaultRetryPolicy()
	p.InitialBackoff = time.Millisecond
	res, err := c.Image().WithRetry(p).Balance().Do(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if res.Credits != 100 {
		t.Errorf("credits = %v", res.Credits)
	}
	if srv.Requests() != 2 {
		t.Errorf("requests = %d, want 2", srv.Requests())
	}
}

func TestClient_UltraUpscaleAsync(t *testing.T) {
	srv := testServer(WithPendingPolls(2))
	c := newClient(t, srv)
	res, err := c.Image().UltraUpscale(picsart.UltraUpscaleParams{
		Image: picsart.ImageURL("https://example.com/cat.png"),
		Mode:  picsart.UpscaleAsync,
	}).Do(context.Background())
	if err != nil {
		t.Fatalf("UltraUpscale: %v", err)
	}
	if res.Image.URL == "" {
		t.Error("empty url")
	}
	// submit plus three polls
	if srv.Requests() != 4 {
		t.Errorf("requests = %d, want 4", srv.Requests())
	}
}

func TestClient_Text2Image(t *testing.T) {
	c := newClient(t, testServer())
	res, err := c.GenAI().Text2Image(picsart.Text2ImageParams{
		Prompt:         "a lighthouse",
		NegativePrompt: "fog",
		Count:          picsart.Int(3),
	}).Do(context.Background())
	if err != nil {
		t.Fatalf("Text2Image: %v", err)
	}
	if len(res.Images) != 3 {
		t.Errorf("images = %d, want 3", len(res.Images))
	}
}

func TestClient_Text2ImageFailed(t *testing.T) {
	c := newClient(t, testServer(WithFailedJobs()))
	_, err := c.GenAI().Text2Image(picsart.Text2ImageParams{Prompt: "p", NegativePrompt: "n"}).Do(context.Background())
	if apierr.KindOf(err) != apierr.KindServer {
		t.Fatalf("kind = %q (%v)", apierr.KindOf(err), err)
	}
}

func TestClient_Effects(t *testing.T) {
	c := newClient(t, testServer(WithEffects("icy1", "zen1")))
	names, err := c.Image().Effects().Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"icy1", "zen1"}, names); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}

	_, err = c.Image().Effect(picsart.EffectParams{
		Image:      picsart.ImageID("img"),
		EffectName: "bogus",
	}).Do(context.Background())
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Errorf("kind = %q (%v)", apierr.KindOf(err), err)
	}
}

func TestClient_EffectsPreviews(t *testing.T) {
	c := newClient(t, testServer(WithEffects("icy1", "zen1")))
	res, err := c.Image().EffectsPreviews(picsart.EffectsPreviewsParams{
		Image:       picsart.ImageID("img"),
		EffectNames: []string{"icy1", "zen1"},
	}).Do(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Previews) != 2 {
		t.Fatalf("previews = %d, want 2", len(res.Previews))
	}
	for _, p := range res.Previews {
		if p.ID == "" || !strings.Contains(p.URL, p.ID) {
			t.Errorf("preview %s: id %q does not match url %q", p.EffectName, p.ID, p.URL)
		}
	}
}
