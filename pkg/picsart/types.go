package picsart

import (
	"io"
	"strconv"
	"strings"

	"github.com/me/creativeapis/internal/request"
	"github.com/me/creativeapis/internal/validate"
)

// Version is the client version reported in the User-Agent header.
const Version = "1.0.0"

// Image is a processed image hosted by Picsart.
type Image struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ImageResult is returned by most image operations.
type ImageResult struct {
	Status   string
	Image    Image
	Metadata Metadata
}

// ImageFormat is the output encoding of a processed image.
type ImageFormat string

const (
	FormatJPG  ImageFormat = "JPG"
	FormatPNG  ImageFormat = "PNG"
	FormatWEBP ImageFormat = "WEBP"
)

var imageFormats = []ImageFormat{FormatJPG, FormatPNG, FormatWEBP}

// OutputType selects what background removal returns.
type OutputType string

const (
	OutputCutout OutputType = "cutout"
	OutputMask   OutputType = "mask"
)

// Scale controls how a cutout is placed on its new background.
type Scale string

const (
	ScaleFit  Scale = "fit"
	ScaleFill Scale = "fill"
)

// UpscaleMode selects synchronous or asynchronous ultra upscaling.
type UpscaleMode string

const (
	UpscaleSync  UpscaleMode = "sync"
	UpscaleAsync UpscaleMode = "async"
	UpscaleAuto  UpscaleMode = "auto"
)

// TexturePattern is the tiling pattern of a background texture.
type TexturePattern string

const (
	PatternHex     TexturePattern = "hex"
	PatternHex2    TexturePattern = "hex2"
	PatternMirror  TexturePattern = "mirror"
	PatternDiamond TexturePattern = "diamond"
	PatternTile    TexturePattern = "tile"
)

// Int returns a pointer to v, for optional parameters.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for optional parameters.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for optional parameters.
func Bool(v bool) *bool { return &v }

// ImageSource identifies an input image: a public URL, the ID of an image
// uploaded earlier, or local content. The zero value is unset.
type ImageSource struct {
	url  string
	id   string
	file *request.File
}

// ImageURL refers to an image by URL.
func ImageURL(u string) ImageSource {
	return ImageSource{url: u}
}

// ImageID refers to an image previously uploaded to Picsart.
func ImageID(id string) ImageSource {
	return ImageSource{id: id}
}

// ImageFile uploads the file at path. The file is streamed, not loaded
// into memory, and reopened if the call is retried.
func ImageFile(path string) ImageSource {
	return ImageSource{file: request.OpenFile(path)}
}

// ImageReader uploads the content of r. r is read at most once, so a call
// using it is not retried, and running it again fails validation.
func ImageReader(filename string, r io.Reader) ImageSource {
	return ImageSource{file: request.ReaderFile(filename, r)}
}

// ImageBytes uploads an in-memory image.
func ImageBytes(filename string, data []byte) ImageSource {
	return ImageSource{file: request.BytesFile(filename, data)}
}

// IsSet reports whether the source refers to an image.
func (s ImageSource) IsSet() bool {
	return s.count() > 0
}

// String describes the source for logs.
func (s ImageSource) String() string {
	switch {
	case s.file != nil:
		return "file:" + s.file.Filename
	case s.url != "":
		return "url:" + s.url
	case s.id != "":
		return "id:" + s.id
	default:
		return "unset"
	}
}

func (s ImageSource) count() int {
	n := 0
	if strings.TrimSpace(s.url) != "" {
		n++
	}
	if strings.TrimSpace(s.id) != "" {
		n++
	}
	if s.file != nil {
		n++
	}
	return n
}

// required checks that exactly one source is set and that a URL is well
// formed.
func (s ImageSource) required(name, message string) []validate.Rule {
	return []validate.Rule{
		validate.ExactlyOne(name, message, s.url != "", s.id != "", s.file != nil),
		validate.URL(name+"_url", s.url),
	}
}

// optional checks that at most one source is set.
func (s ImageSource) optional(name, message string) []validate.Rule {
	return []validate.Rule{
		validate.AtMostOne(name, message, s.url != "", s.id != "", s.file != nil),
		validate.URL(name+"_url", s.url),
	}
}

// form accumulates multipart fields in declaration order. Unset optional
// values are omitted.
type form struct {
	parts []request.Part
}

func (f *form) source(name string, s ImageSource) {
	switch {
	case s.file != nil:
		f.parts = append(f.parts, request.FilePart(name, s.file))
	case s.url != "":
		f.parts = append(f.parts, request.Field(name+"_url", s.url))
	case s.id != "":
		f.parts = append(f.parts, request.Field(name+"_id", s.id))
	}
}

func (f *form) text(name, v string) {
	if v != "" {
		f.parts = append(f.parts, request.Field(name, v))
	}
}

func (f *form) integer(name string, v *int) {
	if v != nil {
		f.parts = append(f.parts, request.Field(name, strconv.Itoa(*v)))
	}
}

func (f *form) decimal(name string, v *float64) {
	if v != nil {
		f.parts = append(f.parts, request.Field(name, strconv.FormatFloat(*v, 'f', -1, 64)))
	}
}

func (f *form) flag(name string, v *bool) {
	if v != nil {
		f.parts = append(f.parts, request.Field(name, strconv.FormatBool(*v)))
	}
}

func (f *form) list(name string, vs []string) {
	if len(vs) > 0 {
		f.parts = append(f.parts, request.Field(name, strings.Join(vs, ",")))
	}
}

func formatRule(format ImageFormat) validate.Rule {
	return validate.Enum("format", format, imageFormats, "Format must be one of JPG, PNG or WEBP")
}
