package picsart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/creativeapis/internal/request"
	"github.com/me/creativeapis/internal/response"
	"github.com/me/creativeapis/pkg/apierr"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func fastPolling() PollConfig {
	return PollConfig{FirstDelay: time.Millisecond, Interval: time.Millisecond, MaxPolls: 10}
}

func testConfig(url string) Config {
	cfg := DefaultConfig().WithAPIKey("test-key-1234").WithBaseURLs(url, url)
	cfg.Timeout = 5 * time.Second
	cfg.Text2ImagePolling = fastPolling()
	cfg.UltraUpscalePolling = fastPolling()
	return cfg
}

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func mustClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// newTestClient starts h and returns a client pointed at it. A zero cfg
// selects testConfig.
func newTestClient(t *testing.T, cfg Config, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := newTestServer(t, h)
	if cfg.APIKey == "" {
		cfg = testConfig(srv.URL)
	} else {
		cfg = cfg.WithBaseURLs(srv.URL, srv.URL)
	}
	return mustClient(t, cfg), srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

const okImage = `{"status":"success","data":{"id":"img-1","url":"https://cdn.picsart.io/img-1.png"}}`

type idBody struct {
	ID string `json:"id"`
}

func uploadOp(t *testing.T) *request.Operation {
	t.Helper()
	meta, err := request.JSONField("metadata", map[string]string{"title": "cat"})
	if err != nil {
		t.Fatal(err)
	}
	return &request.Operation{
		Name:   "upload",
		Method: http.MethodPost,
		Path:   "upload",
		Parts: []request.Part{
			request.FilePart("image", request.BytesFile("cat.png", pngHeader)),
			meta,
		},
	}
}

func TestSend_MultipartUpload(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantID   string
		wantKind apierr.Kind
	}{
		{name: "created", status: http.StatusCreated, body: `{"id":"abc123"}`, wantID: "abc123"},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"rate_limited"}`, wantKind: apierr.KindRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("parse multipart: %v", err)
				}
				if got := r.FormValue("metadata"); got != `{"title":"cat"}` {
					t.Errorf("metadata = %q", got)
				}
				f, hdr, err := r.FormFile("image")
				if err != nil {
					t.Errorf("image part: %v", err)
				} else {
					f.Close()
					if hdr.Filename != "cat.png" {
						t.Errorf("filename = %q", hdr.Filename)
					}
				}
				writeJSON(w, tt.status, tt.body)
			}))

			rep, err := send[idBody](context.Background(), c.image.api, uploadOp(t), nil)
			if tt.wantKind != "" {
				if got := apierr.KindOf(err); got != tt.wantKind {
					t.Fatalf("kind = %q, want %q (%v)", got, tt.wantKind, err)
				}
				var e *apierr.Error
				if errors.As(err, &e) && e.Code != "rate_limited" {
					t.Errorf("code = %q", e.Code)
				}
				return
			}
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if rep.value.ID != tt.wantID || rep.status != tt.status {
				t.Errorf("got id %q status %d", rep.value.ID, rep.status)
			}
		})
	}
}

func TestValidation_NeverSends(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, okImage)
	}))

	_, err := c.Image().RemoveBackground(RemoveBackgroundParams{
		BgBlur: Int(101),
		Format: "GIF",
	}).Do(context.Background())

	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := "removeBackground failed with errors: Blur must be in range [0, 100], Exactly one image source must be set, Format must be one of JPG, PNG or WEBP"
	var e *apierr.Error
	if errors.As(err, &e) && e.Message != want {
		t.Errorf("message:\n got %q\nwant %q", e.Message, want)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server received %d requests", n)
	}
}

func TestImageReader_SecondRunFailsValidation(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		hits.Add(1)
		writeJSON(w, http.StatusOK, okImage)
	}))

	call := c.Image().EnhanceFace(EnhanceFaceParams{
		Image: ImageReader("face.png", strings.NewReader(string(pngHeader))),
	})
	ctx := context.Background()
	if _, err := call.Do(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	_, err := call.Do(ctx)
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("second run kind = %q, want validation (%v)", apierr.KindOf(err), err)
	}
	if !errors.Is(err, request.ErrSourceConsumed) {
		t.Errorf("second run err = %v, want ErrSourceConsumed in chain", err)
	}
	if apierr.IsRetryable(err) {
		t.Error("consumed input reported as retryable")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server received %d requests, want 1", n)
	}
}

func TestCredentialHeader_SentOnce(t *testing.T) {
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Values("X-Picsart-API-Key"); len(got) != 1 || got[0] != "test-key-1234" {
			t.Errorf("api key header = %q", got)
		}
		writeJSON(w, http.StatusOK, `{"credits":12.5}`)
	}))

	res, err := c.Image().Balance().Do(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if res.Credits != 12.5 {
		t.Errorf("credits = %v", res.Credits)
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(DefaultConfig().WithAPIKey("  "), nil)
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWithAPIKey_Copy(t *testing.T) {
	keys := make(chan string, 2)
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("X-Picsart-API-Key")
		writeJSON(w, http.StatusOK, `{"credits":1}`)
	}))

	ctx := context.Background()
	if _, err := c.Image().WithAPIKey("other-key").Balance().Do(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Image().Balance().Do(ctx); err != nil {
		t.Fatal(err)
	}
	if first, second := <-keys, <-keys; first != "other-key" || second != "test-key-1234" {
		t.Errorf("keys = %q, %q", first, second)
	}
}

func blockingHandler(t *testing.T) http.Handler {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
		writeJSON(w, http.StatusOK, okImage)
	})
}

func TestFuture_Cancel(t *testing.T) {
	c, _ := newTestClient(t, Config{}, blockingHandler(t))

	f := c.Image().RemoveBackground(RemoveBackgroundParams{
		Image: ImageURL("https://cdn.picsart.io/cat.jpg"),
	}).Start(context.Background())

	if _, ok := f.Result(); ok {
		t.Fatal("future resolved before the server answered")
	}
	f.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := f.Await(ctx)
	if !errors.Is(res.Error(), apierr.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", res.Error())
	}
	if res.IsOK() {
		t.Error("cancelled future reported success")
	}
}

func TestFuture_AwaitDeadline(t *testing.T) {
	c, _ := newTestClient(t, Config{}, blockingHandler(t))

	f := c.Image().Balance().Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	if apierr.KindOf(err) != apierr.KindCancelled {
		t.Fatalf("kind = %q, want cancelled (%v)", apierr.KindOf(err), err)
	}
	select {
	case <-f.Done():
	default:
		t.Error("future still running after Await returned")
	}
}

func TestFuture_Success(t *testing.T) {
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, okImage)
	}))

	f := c.Image().EnhanceFace(EnhanceFaceParams{Image: ImageID("img-0")}).Start(context.Background())
	res := f.Await(context.Background())
	img, err := res.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if img.Image.URL != "https://cdn.picsart.io/img-1.png" {
		t.Errorf("url = %q", img.Image.URL)
	}
}

func TestFuture_Concurrent(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"status":"success","data":{"id":%q,"url":"https://cdn.picsart.io/%s.png"}}`,
			r.FormValue("image_id"), r.FormValue("image_id")))
	}))

	const n = 32
	futures := make([]*Future[ImageResult], n)
	for i := range futures {
		id := fmt.Sprintf("img-%d", i)
		futures[i] = c.Image().EnhanceFace(EnhanceFaceParams{Image: ImageID(id)}).Start(context.Background())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, f := range futures {
		img, err := f.Get(ctx)
		if err != nil {
			t.Fatalf("future %d: %v", i, err)
		}
		if want := fmt.Sprintf("img-%d", i); img.Image.ID != want {
			t.Errorf("future %d got id %q, want %q", i, img.Image.ID, want)
		}
	}
	if got := hits.Load(); got != n {
		t.Errorf("server received %d requests, want %d", got, n)
	}
}

func TestFuture_ParentCancelled(t *testing.T) {
	c, _ := newTestClient(t, Config{}, blockingHandler(t))

	ctx, cancel := context.WithCancel(context.Background())
	f := c.Image().Balance().Start(ctx)
	cancel()

	res := f.Await(context.Background())
	if apierr.KindOf(res.Error()) != apierr.KindCancelled {
		t.Fatalf("kind = %q, want cancelled (%v)", apierr.KindOf(res.Error()), res.Error())
	}
	if _, ok := f.Result(); !ok {
		t.Error("Result not ready after Await")
	}
}

func TestDo_ContextAlreadyCancelled(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Image().Balance().Do(ctx)
	if apierr.KindOf(err) != apierr.KindCancelled {
		t.Fatalf("kind = %q", apierr.KindOf(err))
	}
	if hits.Load() != 0 {
		t.Error("request sent with a cancelled context")
	}
}

func TestRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	tests := []struct {
		name      string
		policy    RetryPolicy
		statuses  []int
		source    ImageSource
		wantHits  int32
		wantKind  apierr.Kind
		wantValue bool
	}{
		{name: "disabled by default", statuses: []int{503, 200}, source: ImageID("a"), wantHits: 1, wantKind: apierr.KindServer},
		{name: "server errors retried", policy: policy, statuses: []int{503, 502, 200}, source: ImageID("a"), wantHits: 3, wantValue: true},
		{name: "attempts exhausted", policy: policy, statuses: []int{500, 500, 500, 200}, source: ImageID("a"), wantHits: 3, wantKind: apierr.KindServer},
		{name: "rate limit not retried", policy: policy, statuses: []int{429, 200}, source: ImageID("a"), wantHits: 1, wantKind: apierr.KindRateLimit},
		{name: "validation not retried", policy: policy, statuses: []int{400, 200}, source: ImageID("a"), wantHits: 1, wantKind: apierr.KindValidation},
		{name: "auth not retried", policy: policy, statuses: []int{401, 200}, source: ImageID("a"), wantHits: 1, wantKind: apierr.KindAuthentication},
		{name: "replayable file retried", policy: policy, statuses: []int{503, 200}, source: ImageBytes("a.png", pngHeader), wantHits: 2, wantValue: true},
		{name: "single-use reader not retried", policy: policy, statuses: []int{503, 200}, source: ImageReader("a.png", strings.NewReader(string(pngHeader))), wantHits: 1, wantKind: apierr.KindServer},
		{name: "retry on narrowed", policy: RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, RetryOn: []apierr.Kind{apierr.KindTransport}}, statuses: []int{503, 200}, source: ImageID("a"), wantHits: 1, wantKind: apierr.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				n := hits.Add(1)
				status := tt.statuses[n-1]
				if status == http.StatusOK {
					writeJSON(w, status, okImage)
					return
				}
				writeJSON(w, status, `{"detail":"failure"}`)
			})
			cfg := testConfig(newTestServer(t, h).URL)
			cfg.Retry = tt.policy
			c := mustClient(t, cfg)

			res, err := c.Image().Upscale(UpscaleParams{Image: tt.source, UpscaleFactor: Int(2)}).Do(context.Background())
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("hits = %d, want %d", got, tt.wantHits)
			}
			if tt.wantValue {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Image.ID != "img-1" {
					t.Errorf("id = %q", res.Image.ID)
				}
				return
			}
			if got := apierr.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{1, 0, 100 * time.Millisecond},
		{2, 0, 200 * time.Millisecond},
		{3, 0, 300 * time.Millisecond},
		{8, 0, 300 * time.Millisecond},
		{64, 0, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		for range 50 {
			d := p.backoff(tt.attempt)
			if d < tt.min || d >= tt.max {
				t.Fatalf("backoff(%d) = %v, want within [%v, %v)", tt.attempt, d, tt.min, tt.max)
			}
		}
	}

	unset := RetryPolicy{}
	if d := unset.backoff(40); d < 0 || d >= maxBackoff {
		t.Errorf("unset policy backoff = %v, want below %v", d, maxBackoff)
	}
}

func TestParseMetadata(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderRateLimit, "100")
	h.Set(HeaderRateLimitRemaining, "97")
	h.Set(HeaderRateLimitReset, "1700000000")
	h.Set(HeaderCorrelationID, "corr-1")
	h.Set(HeaderCreditsAvailable, "42.5")

	m := parseMetadata(h)
	if m.RateLimit == nil || *m.RateLimit != 100 {
		t.Errorf("RateLimit = %v", m.RateLimit)
	}
	if m.RateLimitRemaining == nil || *m.RateLimitRemaining != 97 {
		t.Errorf("RateLimitRemaining = %v", m.RateLimitRemaining)
	}
	if m.RateLimitReset == nil || !m.RateLimitReset.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("RateLimitReset = %v", m.RateLimitReset)
	}
	if m.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q", m.CorrelationID)
	}
	if m.CreditsAvailable == nil || *m.CreditsAvailable != 42.5 {
		t.Errorf("CreditsAvailable = %v", m.CreditsAvailable)
	}

	empty := parseMetadata(http.Header{HeaderRateLimit: {"lots"}})
	if empty.RateLimit != nil || empty.RateLimitReset != nil || empty.CreditsAvailable != nil {
		t.Errorf("expected nil fields, got %+v", empty)
	}
}

func TestSend_SchemaMismatch(t *testing.T) {
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":"x"}}`)
	}))

	_, err := c.Image().EnhanceFace(EnhanceFaceParams{Image: ImageID("a")}).Do(context.Background())
	if apierr.KindOf(err) != apierr.KindDecoding {
		t.Fatalf("kind = %q (%v)", apierr.KindOf(err), err)
	}
}

func TestSend_CustomSchema(t *testing.T) {
	schema := response.MustSchema("id", `{"type":"object","required":["id"]}`)
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"name":"no id"}`)
	}))

	_, err := send[idBody](context.Background(), c.image.api, uploadOp(t), schema)
	if apierr.KindOf(err) != apierr.KindDecoding {
		t.Fatalf("kind = %q (%v)", apierr.KindOf(err), err)
	}
}
