// Package request turns an Operation descriptor into an authenticated
// *http.Request. Bodies are JSON, or multipart/form-data streamed from their
// sources when the operation declares parts.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/me/creativeapis/internal/validate"
)

// Operation describes one API call. It is built per call and not mutated
// afterwards.
type Operation struct {
	// Name identifies the call in errors and logs, e.g. "removeBackground".
	Name string

	Method string

	// Path is relative to the API base URL and may contain {name}
	// placeholders filled from PathParams.
	Path       string
	PathParams map[string]string
	Query      url.Values

	// Rules are checked before anything is built.
	Rules []validate.Rule

	// Body is encoded as JSON when Parts is empty. nil means no body.
	Body any

	// Parts, when non-empty, selects a multipart/form-data body.
	Parts []Part
}

// Multipart reports whether the operation sends a multipart body.
func (op *Operation) Multipart() bool {
	return len(op.Parts) > 0
}

// Part is one multipart field: a text value or a file.
type Part struct {
	Name        string
	Value       string
	ContentType string // empty for plain text fields
	File        *File
}

// Field returns a plain text part.
func Field(name, value string) Part {
	return Part{Name: name, Value: value}
}

// JSONField returns a part carrying v encoded as JSON.
func JSONField(name string, v any) (Part, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Part{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Part{Name: name, Value: string(b), ContentType: "application/json"}, nil
}

// FilePart returns a part streaming f.
func FilePart(name string, f *File) Part {
	return Part{Name: name, File: f}
}

// ErrSourceConsumed is returned when a single-use reader is opened twice.
var ErrSourceConsumed = errors.New("request: file reader already consumed")

// File is a binary upload. Its content is opened when the request body is
// written and copied without being held in memory.
type File struct {
	// Filename is sent in the part's Content-Disposition.
	Filename string

	// ContentType overrides detection when set.
	ContentType string

	open       func() (io.ReadCloser, error)
	check      func() error
	reopenable bool
}

// OpenFile returns a File reading from path on every open.
func OpenFile(path string) *File {
	return &File{
		Filename:   filepath.Base(path),
		open:       func() (io.ReadCloser, error) { return os.Open(path) },
		reopenable: true,
		check: func() error {
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			return nil
		},
	}
}

// ReaderFile returns a File that can be read exactly once. After the first
// open, Check reports ErrSourceConsumed so a second build fails validation
// before anything is sent.
func ReaderFile(filename string, r io.Reader) *File {
	var opened atomic.Bool
	return &File{
		Filename: filename,
		open: func() (io.ReadCloser, error) {
			if !opened.CompareAndSwap(false, true) {
				return nil, ErrSourceConsumed
			}
			if c, ok := r.(io.ReadCloser); ok {
				return c, nil
			}
			return io.NopCloser(r), nil
		},
		check: func() error {
			if opened.Load() {
				return ErrSourceConsumed
			}
			return nil
		},
	}
}

// BytesFile returns a File over an in-memory payload.
func BytesFile(filename string, data []byte) *File {
	return &File{
		Filename:   filename,
		open:       func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		reopenable: true,
	}
}

// Open opens the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %q has no source", f.Filename)
	}
	return f.open()
}

// Check reports whether the source can be opened, without reading it.
func (f *File) Check() error {
	if f.open == nil {
		return fmt.Errorf("file %q has no source", f.Filename)
	}
	if f.check != nil {
		return f.check()
	}
	return nil
}

// Reopenable reports whether Open may be called more than once.
func (f *File) Reopenable() bool {
	return f.reopenable
}
