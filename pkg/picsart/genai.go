package picsart

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/me/creativeapis/internal/request"
	"github.com/me/creativeapis/internal/validate"
	"github.com/me/creativeapis/pkg/apierr"
)

// JobStatus is one observation of an asynchronous job.
type JobStatus struct {
	ID       string
	Status   string
	Done     bool
	Images   []Image
	Metadata Metadata
}

// pollStream yields job observations until the job is done. It waits
// cfg.FirstDelay before the first poll and cfg.Interval between polls, and
// fails with ErrPollExhausted after cfg.MaxPolls observations without a
// result.
func pollStream(op string, cfg PollConfig, fetch func(ctx context.Context) (JobStatus, error)) *Stream[JobStatus] {
	var (
		polls    int
		finished bool
	)
	return newStream(op, func(ctx context.Context) (JobStatus, bool, error) {
		if finished {
			return JobStatus{}, false, nil
		}
		if cfg.MaxPolls > 0 && polls >= cfg.MaxPolls {
			finished = true
			return JobStatus{}, false, &apierr.Error{
				Kind: apierr.KindServer,
				Op:   op,
				Err:  fmt.Errorf("%w (%d)", apierr.ErrPollExhausted, polls),
			}
		}

		delay := cfg.Interval
		if polls == 0 {
			delay = cfg.FirstDelay
		}
		if err := sleep(ctx, delay); err != nil {
			return JobStatus{}, false, err
		}
		polls++

		st, err := fetch(ctx)
		if err != nil {
			return JobStatus{}, false, err
		}
		finished = st.Done
		return st, true, nil
	})
}

// awaitJob drains s and returns the first image of the finished job.
func awaitJob(ctx context.Context, op string, s *Stream[JobStatus]) (ImageResult, error) {
	for st, err := range s.All(ctx) {
		if err != nil {
			return ImageResult{}, err
		}
		if !st.Done {
			continue
		}
		if len(st.Images) == 0 {
			return ImageResult{}, apierr.New(apierr.KindDecoding, op, "job finished without an image")
		}
		return ImageResult{Status: st.Status, Image: st.Images[0], Metadata: st.Metadata}, nil
	}
	return ImageResult{}, &apierr.Error{Kind: apierr.KindServer, Op: op, Err: apierr.ErrPollExhausted}
}

// GenAIAPI groups the generative operations.
type GenAIAPI struct {
	api
}

// WithAPIKey returns a copy of the API using another key.
func (a *GenAIAPI) WithAPIKey(key string) *GenAIAPI {
	c := *a
	c.cfg = c.cfg.WithAPIKey(key)
	return &c
}

// WithBaseURL returns a copy of the API using another endpoint.
func (a *GenAIAPI) WithBaseURL(u string) *GenAIAPI {
	c := *a
	c.baseURL = u
	return &c
}

// WithTimeout returns a copy of the API with another per-call timeout.
func (a *GenAIAPI) WithTimeout(d time.Duration) *GenAIAPI {
	c := *a
	c.cfg = c.cfg.WithTimeout(d)
	return &c
}

// WithRetry returns a copy of the API with another retry policy.
func (a *GenAIAPI) WithRetry(p RetryPolicy) *GenAIAPI {
	c := *a
	c.cfg = c.cfg.WithRetry(p)
	return &c
}

// Text2ImageParams configures Text2Image.
type Text2ImageParams struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          *int   `json:"width,omitempty"`
	Height         *int   `json:"height,omitempty"`
	Count          *int   `json:"count,omitempty"`
}

func (p Text2ImageParams) rules() []validate.Rule {
	return []validate.Rule{
		validate.NotBlank("prompt", p.Prompt, "Prompt cannot be blank"),
		validate.NotBlank("negative_prompt", p.NegativePrompt, "Negative prompt cannot be blank"),
		validate.Min("width", p.Width, 1, "Width must be greater than 0"),
		validate.Min("height", p.Height, 1, "Height must be greater than 0"),
		validate.Min("count", p.Count, 1, "Count must be greater than 0"),
	}
}

// Text2ImageResult holds the generated images.
type Text2ImageResult struct {
	InferenceID string
	Images      []Image
	Metadata    Metadata
}

type inferenceBody struct {
	InferenceID string `json:"inference_id"`
}

type inferenceStatusBody struct {
	Status string  `json:"status"`
	Data   []Image `json:"data"`
}

func (a *GenAIAPI) submitOp(p Text2ImageParams) *request.Operation {
	return &request.Operation{
		Name:   "text2Image",
		Method: http.MethodPost,
		Path:   "text2image",
		Rules:  p.rules(),
		Body:   p,
	}
}

// SubmitText2Image starts a generation and returns its inference ID
// without waiting for the images.
func (a *GenAIAPI) SubmitText2Image(p Text2ImageParams) *Call[string] {
	op := a.submitOp(p)
	return newCall(op.Name, func(ctx context.Context) (string, error) {
		rep, err := send[inferenceBody](ctx, a.api, op, inferenceSchema)
		if err != nil {
			return "", err
		}
		return rep.value.InferenceID, nil
	})
}

// Text2Image generates images from a prompt and waits until they are
// ready, polling as configured by Config.Text2ImagePolling.
func (a *GenAIAPI) Text2Image(p Text2ImageParams) *Call[Text2ImageResult] {
	op := a.submitOp(p)
	return newCall(op.Name, func(ctx context.Context) (Text2ImageResult, error) {
		rep, err := send[inferenceBody](ctx, a.api, op, inferenceSchema)
		if err != nil {
			return Text2ImageResult{}, err
		}
		id := rep.value.InferenceID
		for st, err := range a.Text2ImageProgress(id).All(ctx) {
			if err != nil {
				return Text2ImageResult{}, err
			}
			if st.Done {
				return Text2ImageResult{InferenceID: id, Images: st.Images, Metadata: st.Metadata}, nil
			}
		}
		return Text2ImageResult{}, &apierr.Error{Kind: apierr.KindServer, Op: op.Name, Err: apierr.ErrPollExhausted}
	})
}

// Text2ImageProgress polls a generation started by SubmitText2Image. The
// stream ends after the inference is done.
func (a *GenAIAPI) Text2ImageProgress(inferenceID string) *Stream[JobStatus] {
	op := &request.Operation{
		Name:       "text2ImageResult",
		Method:     http.MethodGet,
		Path:       "text2image/inferences/{inference_id}",
		PathParams: map[string]string{"inference_id": inferenceID},
	}
	return pollStream(op.Name, a.cfg.Text2ImagePolling, func(ctx context.Context) (JobStatus, error) {
		rep, err := send[inferenceStatusBody](ctx, a.api, op, inferenceStatusSchema)
		if err != nil {
			return JobStatus{}, err
		}
		st := JobStatus{ID: inferenceID, Status: rep.value.Status, Metadata: rep.metadata}
		switch {
		case strings.EqualFold(st.Status, "DONE"):
			st.Done = true
			st.Images = rep.value.Data
		case strings.EqualFold(st.Status, "FAILED"):
			return JobStatus{}, &apierr.Error{
				Kind:          apierr.KindServer,
				Op:            op.Name,
				StatusCode:    rep.status,
				Message:       "inference " + inferenceID + " failed",
				CorrelationID: rep.metadata.CorrelationID,
			}
		}
		return st, nil
	})
}
