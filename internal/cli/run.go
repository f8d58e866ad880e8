package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/me/creativeapis/internal/sink"
	"github.com/me/creativeapis/pkg/apierr"
	"github.com/me/creativeapis/pkg/model"
	"github.com/me/creativeapis/pkg/picsart"
	"github.com/spf13/cobra"
)

// outputFlags are shared by commands that produce an image.
type outputFlags struct {
	out    string
	format string
	json   bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "Save the result to a file or s3://bucket/key")
	cmd.Flags().StringVar(&o.format, "format", "", "Output format (JPG, PNG, WEBP)")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the result as JSON")
}

func (o outputFlags) imageFormat() picsart.ImageFormat {
	return picsart.ImageFormat(strings.ToUpper(o.format))
}

// parseSource interprets an image argument: an http(s) URL, "id:<image id>"
// for an uploaded image, or a local file path.
func parseSource(arg string) picsart.ImageSource {
	switch {
	case arg == "":
		return picsart.ImageSource{}
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		return picsart.ImageURL(arg)
	case strings.HasPrefix(arg, "id:"):
		return picsart.ImageID(strings.TrimPrefix(arg, "id:"))
	default:
		return picsart.ImageFile(arg)
	}
}

// optInt returns a pointer to v when the flag was set on the command line.
func optInt(cmd *cobra.Command, name string, v int) *int {
	if cmd.Flags().Changed(name) {
		return picsart.Int(v)
	}
	return nil
}

func optFloat(cmd *cobra.Command, name string, v float64) *float64 {
	if cmd.Flags().Changed(name) {
		return picsart.Float(v)
	}
	return nil
}

func optBool(cmd *cobra.Command, name string, v bool) *bool {
	if cmd.Flags().Changed(name) {
		return picsart.Bool(v)
	}
	return nil
}

// historyMu serializes history access from concurrent batch jobs.
var historyMu sync.Mutex

// newRecord describes a finished call for the history.
func newRecord(op, input string, start time.Time, err error) *model.Record {
	rec := &model.Record{
		ID:        uuid.NewString(),
		Op:        op,
		Status:    model.RecordOK,
		Input:     input,
		Duration:  time.Since(start),
		CreatedAt: start.UTC(),
	}
	if err != nil {
		rec.Status = model.RecordFailed
		rec.ErrorKind = string(apierr.KindOf(err))
		rec.HTTPStatus = apierr.StatusOf(err)
		rec.ErrorMessage = err.Error()
		var e *apierr.Error
		if errors.As(err, &e) {
			rec.CorrelationID = e.CorrelationID
		}
	}
	return rec
}

func recordMetadata(rec *model.Record, md picsart.Metadata) {
	rec.CorrelationID = md.CorrelationID
	rec.Credits = md.CreditsAvailable
}

// recordHistory stores rec unless history is disabled. Failures to record
// are logged and otherwise ignored.
func recordHistory(ctx context.Context, rec *model.Record) {
	ctx = context.WithoutCancel(ctx)
	historyMu.Lock()
	defer historyMu.Unlock()
	st, err := historyStore(ctx)
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return
	}
	if st == nil {
		return
	}
	if err := st.CreateRecord(ctx, rec); err != nil {
		logger.Warn("record history", "id", rec.ID, "error", err)
	}
}

// save downloads url into dest, a local path or s3:// URL.
func save(ctx context.Context, url, dest string) (sink.Result, error) {
	s, err := sink.Open(ctx, dest)
	if err != nil {
		return sink.Result{}, err
	}
	f := &sink.Fetcher{Logger: logger}
	return f.Fetch(ctx, url, s)
}

// imageOutcome is the printable result of one image call.
type imageOutcome struct {
	Record *model.Record        `json:"record"`
	Result *picsart.ImageResult `json:"-"`
	Saved  *sink.Result         `json:"saved,omitempty"`
}

// execImage runs call, saves the image to dest when set and records the
// outcome in the history.
func execImage(ctx context.Context, op, input, dest string, call *picsart.Call[picsart.ImageResult]) (imageOutcome, error) {
	start := time.Now()
	res, err := call.Do(ctx)
	rec := newRecord(op, input, start, err)
	out := imageOutcome{Record: rec}
	if err == nil {
		out.Result = &res
		rec.ImageID = res.Image.ID
		rec.ImageURL = res.Image.URL
		recordMetadata(rec, res.Metadata)
		if dest != "" {
			saved, serr := save(ctx, res.Image.URL, dest)
			if serr != nil {
				err = fmt.Errorf("save result: %w", serr)
			} else {
				out.Saved = &saved
				rec.SavedTo = saved.Location
			}
		}
	}
	recordHistory(ctx, rec)
	return out, err
}

// runImage executes an image command and prints its result.
func runImage(cmd *cobra.Command, op, input string, o outputFlags, call *picsart.Call[picsart.ImageResult]) error {
	out, err := execImage(cmd.Context(), op, input, o.out, call)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if o.json {
		return printJSON(w, out)
	}
	printImage(w, out)
	return nil
}

func printImage(w io.Writer, out imageOutcome) {
	rec := out.Record
	fmt.Fprintf(w, "ID:       %s\n", rec.ImageID)
	fmt.Fprintf(w, "URL:      %s\n", rec.ImageURL)
	if out.Saved != nil {
		fmt.Fprintf(w, "Saved:    %s (%s)\n", out.Saved.Location, humanize.Bytes(uint64(out.Saved.Bytes)))
	}
	if rec.Credits != nil {
		fmt.Fprintf(w, "Credits:  %s\n", humanizeCredits(*rec.Credits))
	}
	fmt.Fprintf(w, "Duration: %s\n", rec.Duration.Round(time.Millisecond))
}

func humanizeCredits(v float64) string {
	return humanize.Commaf(v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// destFor names the output of input inside dir, a directory or s3:// prefix.
func destFor(dir, input string, format picsart.ImageFormat) string {
	if dir == "" {
		return ""
	}
	base := path.Base(filepath.ToSlash(input))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	ext := ".png"
	if format != "" {
		ext = "." + strings.ToLower(string(format))
	}
	if strings.HasPrefix(dir, "s3://") {
		return strings.TrimSuffix(dir, "/") + "/" + base + ext
	}
	return filepath.Join(dir, base+ext)
}
