package request

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/me/creativeapis/internal/logging"
	"github.com/me/creativeapis/internal/validate"
	"github.com/me/creativeapis/pkg/apierr"
)

// APIKeyHeader carries the Picsart API key.
const APIKeyHeader = "X-Picsart-API-Key"

// sniffLen is how much of a file is peeked when its extension is unknown.
const sniffLen = 3072

// Credential is the API key applied to every request.
type Credential struct {
	Header string
	Key    string
}

// APIKey returns a Credential for the standard Picsart header.
func APIKey(key string) Credential {
	return Credential{Header: APIKeyHeader, Key: key}
}

// Valid reports whether the credential has a key.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.Key) != ""
}

// String masks the key so credentials can be logged.
func (c Credential) String() string {
	return logging.Mask(c.Key)
}

// Builder builds requests against one API base URL.
type Builder struct {
	BaseURL    string
	Credential Credential
	UserAgent  string
}

// Build validates op and returns the request to send. Validation failures
// are returned as *apierr.Error of kind validation and nothing is built.
// The same Operation and Credential always produce the same method, URL,
// headers and body bytes.
func (b *Builder) Build(ctx context.Context, op *Operation) (*http.Request, error) {
	if errs := validateOp(op); errs != nil {
		return nil, errs
	}
	if !b.Credential.Valid() {
		return nil, apierr.Validation(op.Name, "API key must be set")
	}

	path, err := expandPath(op.Path, op.PathParams)
	if err != nil {
		return nil, apierr.Validation(op.Name, err.Error())
	}
	u := strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(op.Query) > 0 {
		u += "?" + op.Query.Encode()
	}

	var (
		req         *http.Request
		contentType string
	)
	switch {
	case op.Multipart():
		boundary := Boundary(op)
		newBody := func() (io.ReadCloser, error) {
			return streamMultipart(op.Parts, boundary), nil
		}
		body, _ := newBody()
		req, err = http.NewRequestWithContext(ctx, op.Method, u, body)
		if err != nil {
			body.Close()
			return nil, apierr.Validation(op.Name, fmt.Sprintf("create request: %v", err))
		}
		req.ContentLength = -1
		if partsReopenable(op.Parts) {
			req.GetBody = newBody
		}
		contentType = "multipart/form-data; boundary=" + boundary

	case op.Body != nil:
		data, err := json.Marshal(op.Body)
		if err != nil {
			return nil, apierr.Validation(op.Name, fmt.Sprintf("encode body: %v", err))
		}
		req, err = http.NewRequestWithContext(ctx, op.Method, u, bytes.NewReader(data))
		if err != nil {
			return nil, apierr.Validation(op.Name, fmt.Sprintf("create request: %v", err))
		}
		contentType = "application/json"

	default:
		req, err = http.NewRequestWithContext(ctx, op.Method, u, nil)
		if err != nil {
			return nil, apierr.Validation(op.Name, fmt.Sprintf("create request: %v", err))
		}
	}

	req.Header.Set(b.Credential.Header, b.Credential.Key)
	req.Header.Set("Accept", "application/json")
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func validateOp(op *Operation) *apierr.Error {
	if op.Method == "" {
		return apierr.Validation(op.Name, "HTTP method must be set")
	}
	errs := validate.Check(op.Rules...)
	for _, p := range op.Parts {
		if p.File == nil {
			continue
		}
		if err := p.File.Check(); err != nil {
			errs = append(errs, validate.FieldError{Field: p.Name, Message: fmt.Sprintf("%s: %v", p.Name, err), Err: err})
		}
	}
	if errs == nil {
		return nil
	}
	e := apierr.Validation(op.Name, errs.Summary(op.Name))
	e.Err = errs
	return e
}

// expandPath substitutes {name} placeholders. Every placeholder must have a
// non-empty value.
func expandPath(tmpl string, params map[string]string) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("malformed path %q", tmpl)
		}
		name := rest[open+1 : open+end]
		v := params[name]
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("path parameter %s must be set", name)
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(v))
		rest = rest[open+end+1:]
	}
}

// Boundary returns the multipart boundary for op. It depends only on the
// method, path template and part names.
func Boundary(op *Operation) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s %s", op.Method, op.Path)
	for _, p := range op.Parts {
		h.Write([]byte{0})
		h.Write([]byte(p.Name))
	}
	return "picsart-" + hex.EncodeToString(h.Sum(nil))[:32]
}

func partsReopenable(parts []Part) bool {
	for _, p := range parts {
		if p.File != nil && !p.File.Reopenable() {
			return false
		}
	}
	return true
}

// streamMultipart writes the form into a pipe from a separate goroutine.
// The goroutine ends when the form is complete or the reader is closed.
func streamMultipart(parts []Part, boundary string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(boundary); err != nil {
			pw.CloseWithError(err)
			return
		}
		for _, p := range parts {
			if err := writePart(mw, p); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()
	return pr
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writePart(mw *multipart.Writer, p Part) error {
	switch {
	case p.File != nil:
		return writeFile(mw, p.Name, p.File)
	case p.ContentType != "":
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(p.Name)))
		h.Set("Content-Type", p.ContentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, p.Value)
		return err
	default:
		return mw.WriteField(p.Name, p.Value)
	}
}

func writeFile(mw *multipart.Writer, name string, f *File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, sniffLen)
	ct := f.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Filename)))
	}
	if ct == "" {
		head, _ := br.Peek(sniffLen)
		ct = mimetype.Detect(head).String()
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(f.Filename)))
	h.Set("Content-Type", ct)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, br); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}
