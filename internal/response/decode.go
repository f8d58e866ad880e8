// Package response turns raw HTTP responses into typed results. Success
// bodies are checked against a declared schema before they are decoded;
// every other status becomes a classified error.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/me/creativeapis/pkg/apierr"
	"github.com/me/creativeapis/pkg/result"
)

// DefaultLimit bounds how much of a response body is read.
const DefaultLimit int64 = 16 << 20

// IsSuccess reports whether status is in [200, 300).
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// ReadBody reads and closes the response body. A success body larger than
// limit bytes is a decoding failure; an error body is cut at limit so the
// status still decides the error kind.
func ReadBody(op string, resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	if limit <= 0 {
		limit = DefaultLimit
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, apierr.FromTransport(op, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > limit {
		if !IsSuccess(resp.StatusCode) {
			return data[:limit], nil
		}
		return nil, apierr.Decoding(op, resp.StatusCode, fmt.Errorf("body exceeds %d bytes", limit))
	}
	return data, nil
}

// Decode applies the status policy to resp and decodes a success body into
// T. The body is always closed.
func Decode[T any](op string, resp *http.Response, schema *Schema, limit int64) result.Result[T] {
	data, err := ReadBody(op, resp, limit)
	if err != nil {
		return result.Err[T](err)
	}
	return DecodeBytes[T](op, resp.StatusCode, resp.Header, data, schema)
}

// DecodeBytes is Decode for an already read body.
func DecodeBytes[T any](op string, status int, header http.Header, data []byte, schema *Schema) result.Result[T] {
	if !IsSuccess(status) {
		return result.Err[T](apierr.FromResponse(op, status, header, data))
	}

	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		if schema != nil {
			return result.Err[T](apierr.Decoding(op, status, fmt.Errorf("%s: empty body", schema.Name())))
		}
		return result.OK(v)
	}
	if schema != nil {
		if err := schema.Check(data); err != nil {
			return result.Err[T](apierr.Decoding(op, status, err))
		}
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return result.Err[T](apierr.Decoding(op, status, fmt.Errorf("decode: %w", err)))
	}
	return result.OK(v)
}
