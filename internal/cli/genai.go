package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/creativeapis/pkg/picsart"
	"github.com/spf13/cobra"
)

func newText2ImageCmd() *cobra.Command {
	var (
		negative      string
		width, height int
		count         int
		outDir        string
		noWait        bool
		resume        string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "text2image [PROMPT]",
		Short: "Generate images from a text prompt",
		Long: `Generate images from a text prompt and wait until they are ready.

With --no-wait only the inference ID is printed; pass it to --resume later
to follow the job and collect its images.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			genai := c.GenAI()

			if resume != "" {
				return followInference(ctx, w, genai, resume, outDir, asJSON)
			}
			if len(args) == 0 {
				return fmt.Errorf("a prompt is required unless --resume is set")
			}
			p := picsart.Text2ImageParams{
				Prompt:         args[0],
				NegativePrompt: negative,
				Width:          optInt(cmd, "width", width),
				Height:         optInt(cmd, "height", height),
				Count:          optInt(cmd, "count", count),
			}

			if noWait {
				start := time.Now()
				call := genai.SubmitText2Image(p)
				id, err := call.Do(ctx)
				rec := newRecord(call.Name(), p.Prompt, start, err)
				rec.ImageID = id
				recordHistory(ctx, rec)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, id)
				return nil
			}

			start := time.Now()
			call := genai.Text2Image(p)
			res, err := call.Do(ctx)
			rec := newRecord(call.Name(), p.Prompt, start, err)
			if err == nil {
				rec.ImageID = res.InferenceID
				if len(res.Images) > 0 {
					rec.ImageURL = res.Images[0].URL
				}
				recordMetadata(rec, res.Metadata)
			}
			var saved []string
			if err == nil && outDir != "" {
				saved, err = saveAll(ctx, res.InferenceID, res.Images, outDir)
				if len(saved) > 0 {
					rec.SavedTo = saved[0]
				}
			}
			recordHistory(ctx, rec)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(w, res)
			}
			printImages(w, res.InferenceID, res.Images, saved)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&negative, "negative", "", "Negative prompt")
	f.IntVar(&width, "width", 0, "Image width")
	f.IntVar(&height, "height", 0, "Image height")
	f.IntVar(&count, "count", 0, "Number of images")
	f.StringVar(&outDir, "out-dir", "", "Save images to a directory or s3://bucket/prefix")
	f.BoolVar(&noWait, "no-wait", false, "Print the inference ID without waiting")
	f.StringVar(&resume, "resume", "", "Follow an inference started with --no-wait")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

// followInference prints each status observation of an inference and the
// images once it is done.
func followInference(ctx context.Context, w io.Writer, genai *picsart.GenAIAPI, id, outDir string, asJSON bool) error {
	for st, err := range genai.Text2ImageProgress(id).All(ctx) {
		if err != nil {
			return err
		}
		if !st.Done {
			if !asJSON {
				fmt.Fprintf(w, "%s  %s\n", time.Now().Format(time.TimeOnly), st.Status)
			}
			continue
		}
		var saved []string
		if outDir != "" {
			if saved, err = saveAll(ctx, id, st.Images, outDir); err != nil {
				return err
			}
		}
		if asJSON {
			return printJSON(w, st)
		}
		printImages(w, id, st.Images, saved)
	}
	return nil
}

func saveAll(ctx context.Context, id string, images []picsart.Image, dir string) ([]string, error) {
	var saved []string
	for i, img := range images {
		dest := destFor(dir, fmt.Sprintf("%s-%d", id, i+1), picsart.FormatPNG)
		res, err := save(ctx, img.URL, dest)
		if err != nil {
			return saved, fmt.Errorf("save image %d: %w", i+1, err)
		}
		logger.Debug("saved", "location", res.Location, "size", humanize.Bytes(uint64(res.Bytes)))
		saved = append(saved, res.Location)
	}
	return saved, nil
}

func printImages(w io.Writer, id string, images []picsart.Image, saved []string) {
	fmt.Fprintf(w, "Inference: %s\n", id)
	for i, img := range images {
		line := img.URL
		if i < len(saved) {
			line += "  -> " + saved[i]
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, line)
	}
}
