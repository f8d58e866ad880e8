package fakeapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// newID generates a resource identifier in the style of the Picsart CDN.
func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// imageData is the payload of a finished image operation.
type imageData struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// respondImage writes the standard success envelope for an image.
func respondImage(w http.ResponseWriter, status int, img imageData) {
	respondJSON(w, status, map[string]any{"status": "success", "data": img})
}

// respondError writes an error body in the shape the API uses.
func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]any{"detail": detail, "code": status})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
