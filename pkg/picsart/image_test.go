package picsart

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/creativeapis/pkg/apierr"
)

type captured struct {
	mu     sync.Mutex
	method string
	path   string
	fields map[string]string
	files  map[string]string
}

// captureServer records the last request and answers every call with body.
func captureServer(t *testing.T, body string) (*Client, *captured) {
	t.Helper()
	got := &captured{}
	c, _ := newTestClient(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.mu.Lock()
		defer got.mu.Unlock()
		got.method = r.Method
		got.path = r.URL.Path
		got.fields = map[string]string{}
		got.files = map[string]string{}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = strings.Join(v, "|")
			}
			for k, v := range r.MultipartForm.File {
				got.files[k] = v[0].Filename
			}
		}
		writeJSON(w, http.StatusOK, body)
	}))
	return c, got
}

func (c *captured) snapshot() (method, path string, fields, files map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method, c.path, c.fields, c.files
}

func TestImageOperations(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(photo, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		run        func(a *ImageAPI) error
		wantPath   string
		wantFields map[string]string
		wantFiles  map[string]string
	}{
		{
			name: "remove background",
			run: func(a *ImageAPI) error {
				_, err := a.RemoveBackground(RemoveBackgroundParams{
					Image:      ImageURL("https://cdn.picsart.io/cat.jpg"),
					OutputType: OutputCutout,
					BgColor:    "#ffffff",
					BgBlur:     Int(10),
					Format:     FormatPNG,
				}).Do(context.Background())
				return err
			},
			wantPath: "/removebg",
			wantFields: map[string]string{
				"image_url":   "https://cdn.picsart.io/cat.jpg",
				"output_type": "cutout",
				"bg_color":    "#ffffff",
				"bg_blur":     "10",
				"format":      "PNG",
			},
		},
		{
			name: "effect from file",
			run: func(a *ImageAPI) error {
				_, err := a.Effect(EffectParams{Image: ImageFile(photo), EffectName: "icy1"}).Do(context.Background())
				return err
			},
			wantPath:   "/effects",
			wantFields: map[string]string{"effect_name": "icy1"},
			wantFiles:  map[string]string{"image": "photo.png"},
		},
		{
			name: "upscale",
			run: func(a *ImageAPI) error {
				_, err := a.Upscale(UpscaleParams{Image: ImageID("img-0"), UpscaleFactor: Int(4)}).Do(context.Background())
				return err
			},
			wantPath:   "/upscale",
			wantFields: map[string]string{"image_id": "img-0", "upscale_factor": "4"},
		},
		{
			name: "ultra enhance",
			run: func(a *ImageAPI) error {
				_, err := a.UltraEnhance(UltraEnhanceParams{Image: ImageID("img-0"), UpscaleFactor: Int(8), Format: FormatWEBP}).Do(context.Background())
				return err
			},
			wantPath:   "/upscale/enhance",
			wantFields: map[string]string{"image_id": "img-0", "upscale_factor": "8", "format": "WEBP"},
		},
		{
			name: "enhance face",
			run: func(a *ImageAPI) error {
				_, err := a.EnhanceFace(EnhanceFaceParams{Image: ImageBytes("face.jpg", []byte("\xff\xd8\xff\xe0"))}).Do(context.Background())
				return err
			},
			wantPath:   "/enhance/face",
			wantFields: map[string]string{},
			wantFiles:  map[string]string{"image": "face.jpg"},
		},
		{
			name: "adjust",
			run: func(a *ImageAPI) error {
				_, err := a.Adjust(AdjustParams{Image: ImageID("img-0"), Brightness: Int(-20), Sharpen: Int(30)}).Do(context.Background())
				return err
			},
			wantPath:   "/adjust",
			wantFields: map[string]string{"image_id": "img-0", "brightness": "-20", "sharpen": "30"},
		},
		{
			name: "background texture",
			run: func(a *ImageAPI) error {
				_, err := a.BackgroundTexture(BackgroundTextureParams{
					Image:   ImageID("img-0"),
					Pattern: PatternDiamond,
					Scale:   Float(1.5),
					Rotate:  Int(45),
				}).Do(context.Background())
				return err
			},
			wantPath:   "/background/texture",
			wantFields: map[string]string{"image_id": "img-0", "pattern": "diamond", "scale": "1.5", "rotate": "45"},
		},
		{
			name: "surface map",
			run: func(a *ImageAPI) error {
				_, err := a.SurfaceMap(SurfaceMapParams{
					Image:   ImageID("img-0"),
					Mask:    ImageURL("https://cdn.picsart.io/mask.png"),
					Sticker: ImageID("img-1"),
				}).Do(context.Background())
				return err
			},
			wantPath: "/surfacemap",
			wantFields: map[string]string{
				"image_id":   "img-0",
				"mask_url":   "https://cdn.picsart.io/mask.png",
				"sticker_id": "img-1",
			},
		},
		{
			name: "upload",
			run: func(a *ImageAPI) error {
				_, err := a.Upload(UploadParams{Image: ImageFile(photo)}).Do(context.Background())
				return err
			},
			wantPath:   "/upload",
			wantFields: map[string]string{},
			wantFiles:  map[string]string{"image": "photo.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, got := captureServer(t, okImage)
			if err := tt.run(c.Image()); err != nil {
				t.Fatalf("call failed: %v", err)
			}
			method, path, fields, files := got.snapshot()
			if method != http.MethodPost || path != tt.wantPath {
				t.Errorf("request = %s %s, want POST %s", method, path, tt.wantPath)
			}
			if diff := cmp.Diff(tt.wantFields, fields); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
			wantFiles := tt.wantFiles
			if wantFiles == nil {
				wantFiles = map[string]string{}
			}
			if diff := cmp.Diff(wantFiles, files); diff != "" {
				t.Errorf("files mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEffectsPreviews(t *testing.T) {
	c, got := captureServer(t, `{"status":"success","data":[{"id":"p1","effect_name":"icy1","url":"https://cdn.picsart.io/p1.png"}]}`)

	res, err := c.Image().EffectsPreviews(EffectsPreviewsParams{
		Image:       ImageID("img-0"),
		EffectNames: []string{"icy1", "brnz1"},
		PreviewSize: Int(120),
	}).Do(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, fields, _ := got.snapshot(); fields["effect_names"] != "icy1,brnz1" || fields["preview_size"] != "120" {
		t.Errorf("fields = %v", fields)
	}
	want := []EffectPreview{{ID: "p1", EffectName: "icy1", URL: "https://cdn.picsart.io/p1.png"}}
	if diff := cmp.Diff(want, res.Previews); diff != "" {
		t.Errorf("previews mismatch (-want +got):\n%s", diff)
	}
}

func TestListEffects(t *testing.T) {
	c, got := captureServer(t, `{"data":[{"name":"icy1"},{"name":"brnz1"}]}`)

	res, err := c.Image().ListEffects().Do(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if method, path, _, _ := got.snapshot(); method != http.MethodGet || path != "/effects" {
		t.Errorf("request = %s %s", method, path)
	}
	if diff := cmp.Diff([]string{"icy1", "brnz1"}, res.Effects); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}
}

func TestImageValidation(t *testing.T) {
	c, got := captureServer(t, okImage)
	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "icy1"
	}

	tests := []struct {
		name string
		run  func(a *ImageAPI) error
		want string
	}{
		{
			name: "two image sources",
			run: func(a *ImageAPI) error {
				_, err := a.Effect(EffectParams{Image: ImageSource{url: "https://a.io/x.png", id: "x"}, EffectName: "icy1"}).Do(context.Background())
				return err
			},
			want: "effect failed with errors: Exactly one image source must be set",
		},
		{
			name: "effect name blank",
			run: func(a *ImageAPI) error {
				_, err := a.Effect(EffectParams{Image: ImageID("x")}).Do(context.Background())
				return err
			},
			want: "effect failed with errors: Effect name must be set",
		},
		{
			name: "upscale factor",
			run: func(a *ImageAPI) error {
				_, err := a.Upscale(UpscaleParams{Image: ImageID("x"), UpscaleFactor: Int(3)}).Do(context.Background())
				return err
			},
			want: "upscale failed with errors: Upscale factor can be 2, 4, 6 or 8",
		},
		{
			name: "ultra upscale mode",
			run: func(a *ImageAPI) error {
				_, err := a.UltraUpscale(UltraUpscaleParams{Image: ImageID("x"), UpscaleFactor: Int(20), Mode: "fast"}).Do(context.Background())
				return err
			},
			want: "ultraUpscale failed with errors: Mode must be sync, async or auto, Upscale factor must be in range [2, 16]",
		},
		{
			name: "too many previews",
			run: func(a *ImageAPI) error {
				_, err := a.EffectsPreviews(EffectsPreviewsParams{Image: ImageID("x"), EffectNames: tooMany}).Do(context.Background())
				return err
			},
			want: "effectsPreviews failed with errors: Maximum 10 effect names are allowed",
		},
		{
			name: "adjust out of range",
			run: func(a *ImageAPI) error {
				_, err := a.Adjust(AdjustParams{Image: ImageID("x"), Hue: Int(-101), Noise: Int(-1)}).Do(context.Background())
				return err
			},
			want: "adjust failed with errors: Hue must be in range [-100, 100], Noise must be in range [0, 100]",
		},
		{
			name: "texture scale",
			run: func(a *ImageAPI) error {
				_, err := a.BackgroundTexture(BackgroundTextureParams{Image: ImageID("x"), Scale: Float(0.1)}).Do(context.Background())
				return err
			},
			want: "backgroundTexture failed with errors: Scale must be in range [0.5, 10]",
		},
		{
			name: "surface map mask",
			run: func(a *ImageAPI) error {
				_, err := a.SurfaceMap(SurfaceMapParams{Image: ImageID("x"), Sticker: ImageID("y")}).Do(context.Background())
				return err
			},
			want: "surfaceMap failed with errors: Exactly one mask source must be set",
		},
		{
			name: "upload by id",
			run: func(a *ImageAPI) error {
				_, err := a.Upload(UploadParams{Image: ImageID("x")}).Do(context.Background())
				return err
			},
			want: "upload failed with errors: Exactly one of image file or URL must be set, Upload does not accept an image ID",
		},
		{
			name: "missing file",
			run: func(a *ImageAPI) error {
				_, err := a.EnhanceFace(EnhanceFaceParams{Image: ImageFile(filepath.Join(t.TempDir(), "absent.png"))}).Do(context.Background())
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(c.Image())
			e, ok := err.(*apierr.Error)
			if !ok || e.Kind != apierr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tt.want != "" && e.Message != tt.want {
				t.Errorf("message:\n got %q\nwant %q", e.Message, tt.want)
			}
			if _, path, _, _ := got.snapshot(); path != "" {
				t.Errorf("request sent to %s", path)
			}
		})
	}
}
