package fakeapi

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadMemory = 32 << 20

// imageURL builds the CDN location for a generated image.
func imageURL(r *http.Request, id, format string) string {
	ext := ".png"
	switch strings.ToUpper(format) {
	case "JPG":
		ext = ".jpg"
	case "WEBP":
		ext = ".webp"
	}
	return "http://" + r.Host + "/cdn/" + id + ext
}

// parseSource checks that the form names exactly one image source.
func parseSource(r *http.Request) (string, bool) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return "request must be multipart/form-data", false
	}
	n := 0
	if r.MultipartForm != nil && len(r.MultipartForm.File["image"]) > 0 {
		n++
	}
	if r.FormValue("image_url") != "" {
		n++
	}
	if r.FormValue("image_id") != "" {
		n++
	}
	if n != 1 {
		return "exactly one of image, image_url or image_id is required", false
	}
	return "", true
}

func (s *Server) newImage(r *http.Request) imageData {
	id := newID()
	return imageData{ID: id, URL: imageURL(r, id, r.FormValue("format"))}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseSource(r); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if r.URL.Path == "/effects" {
		name := r.FormValue("effect_name")
		if !slices.Contains(s.effects, name) {
			respondError(w, http.StatusBadRequest, "unknown effect "+name)
			return
		}
	}
	respondImage(w, http.StatusOK, s.newImage(r))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseSource(r); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if r.FormValue("image_id") != "" {
		respondError(w, http.StatusBadRequest, "image_id is not accepted")
		return
	}
	respondImage(w, http.StatusCreated, s.newImage(r))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"credits": s.Credits()})
}

func (s *Server) handleListEffects(w http.ResponseWriter, r *http.Request) {
	type effect struct {
		Name string `json:"name"`
	}
	data := make([]effect, 0, len(s.effects))
	for _, name := range s.effects {
		data = append(data, effect{Name: name})
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func (s *Server) handlePreviews(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseSource(r); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	type preview struct {
		ID         string `json:"id"`
		EffectName string `json:"effect_name"`
		URL        string `json:"url"`
	}
	var data []preview
	for _, name := range strings.Split(r.FormValue("effect_names"), ",") {
		name = strings.TrimSpace(name)
		if !slices.Contains(s.effects, name) {
			respondError(w, http.StatusBadRequest, "unknown effect "+name)
			return
		}
		id := newID()
		data = append(data, preview{ID: id, EffectName: name, URL: imageURL(r, id, r.FormValue("format"))})
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func (s *Server) handleUltraUpscale(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseSource(r); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	img := s.newImage(r)
	if r.FormValue("mode") != "async" {
		respondImage(w, http.StatusOK, img)
		return
	}
	id := newID()
	s.mu.Lock()
	s.jobs[id] = &job{remaining: s.pendingPolls, images: []string{img.URL}}
	s.mu.Unlock()
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "processing", "transaction_id": id})
}

func (s *Server) handleUltraUpscaleResult(w http.ResponseWriter, r *http.Request) {
	j, done := s.poll(chi.URLParam(r, "transactionID"))
	switch {
	case j == nil:
		respondError(w, http.StatusNotFound, "transaction not found")
	case !done:
		respondJSON(w, http.StatusAccepted, map[string]any{"status": "processing"})
	default:
		respondImage(w, http.StatusOK, imageData{ID: idFromURL(j.images[0]), URL: j.images[0]})
	}
}

type text2ImageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Count          int    `json:"count"`
}

func (s *Server) handleText2Image(w http.ResponseWriter, r *http.Request) {
	var req text2ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	count := max(req.Count, 1)
	j := &job{remaining: s.pendingPolls, failed: s.failJobs}
	for range count {
		j.images = append(j.images, imageURL(r, newID(), "PNG"))
	}
	id := newID()
	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "ACCEPTED", "inference_id": id})
}

func (s *Server) handleInference(w http.ResponseWriter, r *http.Request) {
	j, done := s.poll(chi.URLParam(r, "inferenceID"))
	switch {
	case j == nil:
		respondError(w, http.StatusNotFound, "inference not found")
	case !done:
		respondJSON(w, http.StatusAccepted, map[string]any{"status": "PROCESSING"})
	case j.failed:
		respondJSON(w, http.StatusOK, map[string]any{"status": "FAILED"})
	default:
		data := make([]imageData, 0, len(j.images))
		for _, u := range j.images {
			data = append(data, imageData{ID: idFromURL(u), URL: u})
		}
		respondJSON(w, http.StatusOK, map[string]any{"status": "DONE", "data": data})
	}
}

// poll records one status check and reports whether the job is finished.
// It returns nil for unknown jobs.
func (s *Server) poll(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	if j.remaining > 0 {
		j.remaining--
		return j, false
	}
	return j, true
}

func idFromURL(u string) string {
	name := u[strings.LastIndex(u, "/")+1:]
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

// handleCDN serves a 1x1 placeholder for any result image.
func (s *Server) handleCDN(w http.ResponseWriter, r *http.Request) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	w.Header().Set("Content-Type", "image/png")
	png.Encode(w, img)
}
