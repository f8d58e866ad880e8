// Package model defines the records kept by the command line tool.
package model

import (
	"fmt"
	"time"
)

// RecordStatus is the outcome of a recorded call.
type RecordStatus string

const (
	RecordOK     RecordStatus = "ok"
	RecordFailed RecordStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s RecordStatus) IsValid() bool {
	return s == RecordOK || s == RecordFailed
}

// ParseRecordStatus converts a user supplied filter.
func ParseRecordStatus(s string) (RecordStatus, error) {
	st := RecordStatus(s)
	if s == "" || st.IsValid() {
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q (want ok or failed)", s)
}

// Record is one completed API call.
type Record struct {
	ID            string        `json:"id"`
	Op            string        `json:"op"`
	Status        RecordStatus  `json:"status"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	HTTPStatus    int           `json:"http_status,omitempty"`
	Input         string        `json:"input,omitempty"`
	ImageID       string        `json:"image_id,omitempty"`
	ImageURL      string        `json:"image_url,omitempty"`
	SavedTo       string        `json:"saved_to,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Credits       *float64      `json:"credits,omitempty"`
	Duration      time.Duration `json:"duration"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Failed reports whether the call failed.
func (r *Record) Failed() bool {
	return r.Status == RecordFailed
}
