package apierr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Upstream headers consulted while classifying a response.
const (
	HeaderCorrelationID  = "X-Picsart-Correlation-Id"
	HeaderRateLimitReset = "X-Picsart-Ratelimit-Reset-Time"
)

// maxMessageLen bounds raw (unstructured) bodies copied into Message.
const maxMessageLen = 512

// validationStatuses are 4xx codes that describe a problem with the request
// the caller built. Any other 4xx outside auth and rate limiting is treated
// as a server side failure.
var validationStatuses = map[int]bool{
	http.StatusBadRequest:                  true,
	http.StatusNotFound:                    true,
	http.StatusMethodNotAllowed:            true,
	http.StatusNotAcceptable:               true,
	http.StatusConflict:                    true,
	http.StatusGone:                        true,
	http.StatusLengthRequired:              true,
	http.StatusRequestEntityTooLarge:       true,
	http.StatusRequestURITooLong:           true,
	http.StatusUnsupportedMediaType:        true,
	http.StatusUnprocessableEntity:         true,
	http.StatusRequestHeaderFieldsTooLarge: true,
}

// KindForStatus maps a non-2xx HTTP status to an error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case validationStatuses[status]:
		return KindValidation
	default:
		return KindServer
	}
}

// errorBody is the union of error shapes returned by the Picsart APIs.
type errorBody struct {
	Detail  string          `json:"detail"`
	Message string          `json:"message"`
	Err     string          `json:"error"`
	Code    json.RawMessage `json:"code"`
}

// FromResponse classifies a non-2xx response. body may be empty; header may
// be nil.
func FromResponse(op string, status int, header http.Header, body []byte) *Error {
	e := &Error{
		Kind:       KindForStatus(status),
		Op:         op,
		StatusCode: status,
	}
	e.Message, e.Code = parseBody(body)
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	if header != nil {
		e.CorrelationID = header.Get(HeaderCorrelationID)
		if e.Kind == KindRateLimit {
			e.RetryAfter = retryAfter(header, time.Now())
		}
	}
	return e
}

func parseBody(body []byte) (message, code string) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", ""
	}
	var eb errorBody
	if body[0] == '{' && json.Unmarshal(body, &eb) == nil {
		code = strings.Trim(string(eb.Code), `"`)
		switch {
		case eb.Detail != "":
			return eb.Detail, code
		case eb.Message != "":
			return eb.Message, code
		case eb.Err != "":
			if code == "" {
				code = eb.Err
			}
			return eb.Err, code
		}
	}
	msg := string(body)
	if len(msg) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg, code
}

// retryAfter reads Retry-After (seconds or HTTP date) and falls back to the
// Picsart reset header, which carries epoch seconds.
func retryAfter(header http.Header, now time.Time) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}
	if v := header.Get(HeaderRateLimitReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if t := time.Unix(epoch, 0); t.After(now) {
				return t.Sub(now)
			}
		}
	}
	return 0
}

// FromTransport classifies an error raised before a complete response was
// received, including errors while reading the body.
func FromTransport(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled(op, err)
	}
	te := &Error{Kind: KindTransport, Op: op, Err: err}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		te.Timeout = true
	}
	return te
}
