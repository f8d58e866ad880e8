package picsart

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/me/creativeapis/internal/request"
	"github.com/me/creativeapis/internal/response"
	"github.com/me/creativeapis/internal/validate"
	"github.com/me/creativeapis/pkg/apierr"
)

const msgImageSource = "Exactly one image source must be set"

// ImageAPI groups the Image API operations.
type ImageAPI struct {
	api
}

// WithAPIKey returns a copy of the API using another key. The copy shares
// the client's connection pool.
func (a *ImageAPI) WithAPIKey(key string) *ImageAPI {
	c := *a
	c.cfg = c.cfg.WithAPIKey(key)
	return &c
}

// WithBaseURL returns a copy of the API using another endpoint.
func (a *ImageAPI) WithBaseURL(u string) *ImageAPI {
	c := *a
	c.baseURL = u
	return &c
}

// WithTimeout returns a copy of the API with another per-call timeout.
func (a *ImageAPI) WithTimeout(d time.Duration) *ImageAPI {
	c := *a
	c.cfg = c.cfg.WithTimeout(d)
	return &c
}

// WithRetry returns a copy of the API with another retry policy.
func (a *ImageAPI) WithRetry(p RetryPolicy) *ImageAPI {
	c := *a
	c.cfg = c.cfg.WithRetry(p)
	return &c
}

type imageBody struct {
	Status string `json:"status"`
	Data   Image  `json:"data"`
}

// imageCall posts a multipart form and decodes the standard image body.
func (a *ImageAPI) imageCall(name, path string, rules []validate.Rule, f form) *Call[ImageResult] {
	op := &request.Operation{
		Name:   name,
		Method: http.MethodPost,
		Path:   path,
		Rules:  rules,
		Parts:  f.parts,
	}
	return newCall(name, func(ctx context.Context) (ImageResult, error) {
		rep, err := send[imageBody](ctx, a.api, op, imageSchema)
		if err != nil {
			return ImageResult{}, err
		}
		return ImageResult{Status: rep.value.Status, Image: rep.value.Data, Metadata: rep.metadata}, nil
	})
}

// RemoveBackgroundParams configures RemoveBackground.
type RemoveBackgroundParams struct {
	Image         ImageSource
	OutputType    OutputType
	BgImage       ImageSource
	BgColor       string
	BgBlur        *int
	BgWidth       *int
	BgHeight      *int
	Scale         Scale
	AutoCenter    *bool
	StrokeSize    *int
	StrokeColor   string
	StrokeOpacity *int
	Format        ImageFormat
}

// RemoveBackground cuts the subject out of an image, optionally placing it
// on a new background.
func (a *ImageAPI) RemoveBackground(p RemoveBackgroundParams) *Call[ImageResult] {
	rules := append(p.Image.required("image", msgImageSource),
		p.BgImage.optional("bg_image", "Only one bg image source can be set")...)
	rules = append(rules,
		validate.Enum("output_type", p.OutputType, []OutputType{OutputCutout, OutputMask}, "Output type must be cutout or mask"),
		validate.Color("bg_color", p.BgColor),
		validate.Range("bg_blur", p.BgBlur, 0, 100, "Blur must be in range [0, 100]"),
		validate.Min("bg_width", p.BgWidth, 1, "Background width must be at least 1"),
		validate.Min("bg_height", p.BgHeight, 1, "Background height must be at least 1"),
		validate.Enum("scale", p.Scale, []Scale{ScaleFit, ScaleFill}, "Scale must be fit or fill"),
		validate.Range("stroke_size", p.StrokeSize, 0, 100, "Stroke size must be in range [0, 100]"),
		validate.Color("stroke_color", p.StrokeColor),
		validate.Range("stroke_opacity", p.StrokeOpacity, 0, 100, "Stroke opacity must be in range [0, 100]"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.text("output_type", string(p.OutputType))
	f.source("bg_image", p.BgImage)
	f.text("bg_color", p.BgColor)
	f.integer("bg_blur", p.BgBlur)
	f.integer("bg_width", p.BgWidth)
	f.integer("bg_height", p.BgHeight)
	f.text("scale", string(p.Scale))
	f.flag("auto_center", p.AutoCenter)
	f.integer("stroke_size", p.StrokeSize)
	f.text("stroke_color", p.StrokeColor)
	f.integer("stroke_opacity", p.StrokeOpacity)
	f.text("format", string(p.Format))
	return a.imageCall("removeBackground", "removebg", rules, f)
}

// EffectParams configures Effect.
type EffectParams struct {
	Image      ImageSource
	EffectName string
	Format     ImageFormat
}

// Effect applies a named effect. ListEffects returns the valid names.
func (a *ImageAPI) Effect(p EffectParams) *Call[ImageResult] {
	rules := append(p.Image.required("image", msgImageSource),
		validate.NotBlank("effect_name", p.EffectName, "Effect name must be set"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.text("effect_name", p.EffectName)
	f.text("format", string(p.Format))
	return a.imageCall("effect", "effects", rules, f)
}

// EffectsResult lists the available effect names.
type EffectsResult struct {
	Effects  []string
	Metadata Metadata
}

type effectsBody struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

// ListEffects returns the names accepted by Effect and EffectsPreviews.
func (a *ImageAPI) ListEffects() *Call[EffectsResult] {
	op := &request.Operation{Name: "listEffects", Method: http.MethodGet, Path: "effects"}
	return newCall(op.Name, func(ctx context.Context) (EffectsResult, error) {
		rep, err := send[effectsBody](ctx, a.api, op, effectsSchema)
		if err != nil {
			return EffectsResult{}, err
		}
		res := EffectsResult{Effects: make([]string, 0, len(rep.value.Data)), Metadata: rep.metadata}
		for _, e := range rep.value.Data {
			res.Effects = append(res.Effects, e.Name)
		}
		return res, nil
	})
}

// Effects streams the effect catalogue. The catalogue is fetched when the
// iteration starts.
func (a *ImageAPI) Effects() *Stream[string] {
	call := a.ListEffects()
	return sliceStream(call.Name(), func(ctx context.Context) ([]string, error) {
		res, err := call.Do(ctx)
		return res.Effects, err
	})
}

// UltraUpscaleParams configures UltraUpscale.
type UltraUpscaleParams struct {
	Image         ImageSource
	UpscaleFactor *int
	Mode          UpscaleMode
	Format        ImageFormat
}

type acceptedImageBody struct {
	Status        string `json:"status"`
	Data          *Image `json:"data"`
	TransactionID string `json:"transaction_id"`
}

// UltraUpscale enlarges an image up to 16 times. When the API accepts the
// job asynchronously the call polls until the result is ready, as
// configured by Config.UltraUpscalePolling.
func (a *ImageAPI) UltraUpscale(p UltraUpscaleParams) *Call[ImageResult] {
	rules := append(p.Image.required("image", msgImageSource),
		validate.Range("upscale_factor", p.UpscaleFactor, 2, 16, "Upscale factor must be in range [2, 16]"),
		validate.Enum("mode", p.Mode, []UpscaleMode{UpscaleSync, UpscaleAsync, UpscaleAuto}, "Mode must be sync, async or auto"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.integer("upscale_factor", p.UpscaleFactor)
	f.text("mode", string(p.Mode))
	f.text("format", string(p.Format))

	op := &request.Operation{
		Name:   "ultraUpscale",
		Method: http.MethodPost,
		Path:   "upscale/ultra",
		Rules:  rules,
		Parts:  f.parts,
	}
	return newCall(op.Name, func(ctx context.Context) (ImageResult, error) {
		rep, err := send[acceptedImageBody](ctx, a.api, op, acceptedImageSchema)
		if err != nil {
			return ImageResult{}, err
		}
		if rep.status != http.StatusAccepted && rep.value.Data != nil {
			return ImageResult{Status: rep.value.Status, Image: *rep.value.Data, Metadata: rep.metadata}, nil
		}
		if rep.value.TransactionID == "" {
			return ImageResult{}, apierr.Decoding(op.Name, rep.status, errors.New("accepted without transaction_id"))
		}
		return awaitJob(ctx, op.Name, a.UltraUpscaleProgress(rep.value.TransactionID))
	})
}

type ultraPollBody struct {
	Status string `json:"status"`
	Data   *Image `json:"data"`
}

// UltraUpscaleProgress polls an asynchronous ultra upscale job. The stream
// ends after the job is done.
func (a *ImageAPI) UltraUpscaleProgress(transactionID string) *Stream[JobStatus] {
	op := &request.Operation{
		Name:       "ultraUpscaleResult",
		Method:     http.MethodGet,
		Path:       "upscale/ultra/{transaction_id}",
		PathParams: map[string]string{"transaction_id": transactionID},
	}
	return pollStream(op.Name, a.cfg.UltraUpscalePolling, func(ctx context.Context) (JobStatus, error) {
		rep, err := send[json.RawMessage](ctx, a.api, op, nil)
		if err != nil {
			return JobStatus{}, err
		}
		st := JobStatus{ID: transactionID, Metadata: rep.metadata}
		if rep.status == http.StatusAccepted {
			body, err := response.DecodeBytes[ultraPollBody](op.Name, rep.status, nil, rep.value, pendingSchema).Unwrap()
			if err != nil {
				return JobStatus{}, err
			}
			st.Status = body.Status
			if st.Status == "" {
				st.Status = "processing"
			}
			return st, nil
		}
		body, err := response.DecodeBytes[imageBody](op.Name, rep.status, nil, rep.value, imageSchema).Unwrap()
		if err != nil {
			return JobStatus{}, err
		}
		st.Status = body.Status
		st.Done = true
		st.Images = []Image{body.Data}
		return st, nil
	})
}

// UpscaleParams configures Upscale.
type UpscaleParams struct {
	Image         ImageSource
	UpscaleFactor *int
	Format        ImageFormat
}

// Upscale enlarges an image by 2, 4, 6 or 8 times.
func (a *ImageAPI) Upscale(p UpscaleParams) *Call[ImageResult] {
	rules := append(p.Image.required("image", msgImageSource),
		validate.OneOf("upscale_factor", p.UpscaleFactor, []int{2, 4, 6, 8}, "Upscale factor can be 2, 4, 6 or 8"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.integer("upscale_factor", p.UpscaleFactor)
	f.text("format", string(p.Format))
	return a.imageCall("upscale", "upscale", rules, f)
}

// UltraEnhanceParams configures UltraEnhance.
type UltraEnhanceParams struct {
	Image         ImageSource
	UpscaleFactor *int
	Format        ImageFormat
}

// UltraEnhance upscales and restores detail in one step.
func (a *ImageAPI) UltraEnhance(p UltraEnhanceParams) *Call[ImageResult] {
	rules := append(p.Image.required("image", msgImageSource),
		validate.Range("upscale_factor", p.UpscaleFactor, 2, 16, "Upscale factor must be in range [2, 16]"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.integer("upscale_factor", p.UpscaleFactor)
	f.text("format", string(p.Format))
	return a.imageCall("ultraEnhance", "upscale/enhance", rules, f)
}

// EnhanceFaceParams configures EnhanceFace.
type EnhanceFaceParams struct {
	Image  ImageSource
	Format ImageFormat
}

// EnhanceFace restores faces in a portrait.
func (a *ImageAPI) EnhanceFace(p EnhanceFaceParams) *Call[ImageResult] {
	rules := append(p.Image.required("image", msgImageSource), formatRule(p.Format))

	var f form
	f.source("image", p.Image)
	f.text("format", string(p.Format))
	return a.imageCall("enhanceFace", "enhance/face", rules, f)
}

// EffectsPreviewsParams configures EffectsPreviews.
type EffectsPreviewsParams struct {
	Image       ImageSource
	EffectNames []string
	PreviewSize *int
	Format      ImageFormat
}

// EffectPreview is a thumbnail of one effect applied to the input.
type EffectPreview struct {
	ID         string `json:"id"`
	EffectName string `json:"effect_name"`
	URL        string `json:"url"`
}

// EffectsPreviewsResult holds one preview per requested effect.
type EffectsPreviewsResult struct {
	Previews []EffectPreview
	Metadata Metadata
}

type previewsBody struct {
	Status string          `json:"status"`
	Data   []EffectPreview `json:"data"`
}

// EffectsPreviews renders up to ten effects as small previews.
func (a *ImageAPI) EffectsPreviews(p EffectsPreviewsParams) *Call[EffectsPreviewsResult] {
	rules := append(p.Image.required("image", msgImageSource),
		validate.Length("effect_names", len(p.EffectNames), 0, 10, "Maximum 10 effect names are allowed"),
		validate.Length("effect_names", len(p.EffectNames), 1, math.MaxInt, "At least one effect name must be set"),
		validate.Min("preview_size", p.PreviewSize, 1, "Preview size must be at least 1"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.list("effect_names", p.EffectNames)
	f.integer("preview_size", p.PreviewSize)
	f.text("format", string(p.Format))

	op := &request.Operation{
		Name:   "effectsPreviews",
		Method: http.MethodPost,
		Path:   "effects/previews",
		Rules:  rules,
		Parts:  f.parts,
	}
	return newCall(op.Name, func(ctx context.Context) (EffectsPreviewsResult, error) {
		rep, err := send[previewsBody](ctx, a.api, op, previewsSchema)
		if err != nil {
			return EffectsPreviewsResult{}, err
		}
		return EffectsPreviewsResult{Previews: rep.value.Data, Metadata: rep.metadata}, nil
	})
}

// AdjustParams configures Adjust. Unset values are left unchanged.
type AdjustParams struct {
	Image       ImageSource
	Brightness  *int
	Contrast    *int
	Clarity     *int
	Saturation  *int
	Hue         *int
	Shadows     *int
	Highlights  *int
	Temperature *int
	Sharpen     *int
	Noise       *int
	Vignette    *int
	Format      ImageFormat
}

// Adjust applies tonal and color corrections.
func (a *ImageAPI) Adjust(p AdjustParams) *Call[ImageResult] {
	signed := []struct {
		field, label string
		v            *int
	}{
		{"brightness", "Brightness", p.Brightness},
		{"contrast", "Contrast", p.Contrast},
		{"clarity", "Clarity", p.Clarity},
		{"saturation", "Saturation", p.Saturation},
		{"hue", "Hue", p.Hue},
		{"shadows", "Shadows", p.Shadows},
		{"highlights", "Highlights", p.Highlights},
		{"temperature", "Temperature", p.Temperature},
	}
	unsigned := []struct {
		field, label string
		v            *int
	}{
		{"sharpen", "Sharpen", p.Sharpen},
		{"noise", "Noise", p.Noise},
		{"vignette", "Vignette", p.Vignette},
	}

	rules := p.Image.required("image", msgImageSource)
	var f form
	f.source("image", p.Image)
	for _, s := range signed {
		rules = append(rules, validate.Range(s.field, s.v, -100, 100, s.label+" must be in range [-100, 100]"))
		f.integer(s.field, s.v)
	}
	for _, s := range unsigned {
		rules = append(rules, validate.Range(s.field, s.v, 0, 100, s.label+" must be in range [0, 100]"))
		f.integer(s.field, s.v)
	}
	rules = append(rules, formatRule(p.Format))
	f.text("format", string(p.Format))
	return a.imageCall("adjust", "adjust", rules, f)
}

// BackgroundTextureParams configures BackgroundTexture.
type BackgroundTextureParams struct {
	Image   ImageSource
	Width   *int
	Height  *int
	OffsetX *int
	OffsetY *int
	Pattern TexturePattern
	Rotate  *int
	Scale   *float64
	Format  ImageFormat
}

// BackgroundTexture tiles the input image into a texture.
func (a *ImageAPI) BackgroundTexture(p BackgroundTextureParams) *Call[ImageResult] {
	patterns := []TexturePattern{PatternHex, PatternHex2, PatternMirror, PatternDiamond, PatternTile}
	rules := append(p.Image.required("image", msgImageSource),
		validate.Range("width", p.Width, 1, 8000, "Width must be in range [1, 8000]"),
		validate.Range("height", p.Height, 1, 8000, "Height must be in range [1, 8000]"),
		validate.Enum("pattern", p.Pattern, patterns, "Pattern must be one of hex, hex2, mirror, diamond or tile"),
		validate.Range("rotate", p.Rotate, -180, 180, "Rotate must be in range [-180, 180]"),
		validate.Range("scale", p.Scale, 0.5, 10, "Scale must be in range [0.5, 10]"),
		formatRule(p.Format),
	)

	var f form
	f.source("image", p.Image)
	f.integer("width", p.Width)
	f.integer("height", p.Height)
	f.integer("offset_x", p.OffsetX)
	f.integer("offset_y", p.OffsetY)
	f.text("pattern", string(p.Pattern))
	f.integer("rotate", p.Rotate)
	f.decimal("scale", p.Scale)
	f.text("format", string(p.Format))
	return a.imageCall("backgroundTexture", "background/texture", rules, f)
}

// SurfaceMapParams configures SurfaceMap.
type SurfaceMapParams struct {
	Image   ImageSource
	Mask    ImageSource
	Sticker ImageSource
	Format  ImageFormat
}

// SurfaceMap wraps a sticker onto the masked surface of an image.
func (a *ImageAPI) SurfaceMap(p SurfaceMapParams) *Call[ImageResult] {
	rules := p.Image.required("image", msgImageSource)
	rules = append(rules, p.Mask.required("mask", "Exactly one mask source must be set")...)
	rules = append(rules, p.Sticker.required("sticker", "Exactly one sticker source must be set")...)
	rules = append(rules, formatRule(p.Format))

	var f form
	f.source("image", p.Image)
	f.source("mask", p.Mask)
	f.source("sticker", p.Sticker)
	f.text("format", string(p.Format))
	return a.imageCall("surfaceMap", "surfacemap", rules, f)
}

// UploadParams configures Upload. Image must be a file, reader or URL.
type UploadParams struct {
	Image ImageSource
}

// Upload stores an image with Picsart and returns its ID, which other
// operations accept through ImageID.
func (a *ImageAPI) Upload(p UploadParams) *Call[ImageResult] {
	rules := []validate.Rule{
		validate.ExactlyOne("image", "Exactly one of image file or URL must be set", p.Image.file != nil, p.Image.url != ""),
		validate.URL("image_url", p.Image.url),
		func() *validate.FieldError {
			if p.Image.id != "" {
				return &validate.FieldError{Field: "image_id", Message: "Upload does not accept an image ID"}
			}
			return nil
		},
	}

	var f form
	f.source("image", p.Image)
	return a.imageCall("upload", "upload", rules, f)
}

// BalanceResult is the account's remaining credit balance.
type BalanceResult struct {
	Credits  float64
	Metadata Metadata
}

type balanceBody struct {
	Credits float64 `json:"credits"`
}

// Balance returns the remaining credits.
func (a *ImageAPI) Balance() *Call[BalanceResult] {
	op := &request.Operation{Name: "balance", Method: http.MethodGet, Path: "balance"}
	return newCall(op.Name, func(ctx context.Context) (BalanceResult, error) {
		rep, err := send[balanceBody](ctx, a.api, op, balanceSchema)
		if err != nil {
			return BalanceResult{}, err
		}
		return BalanceResult{Credits: rep.value.Credits, Metadata: rep.metadata}, nil
	})
}
