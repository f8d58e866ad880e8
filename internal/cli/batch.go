package cli

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/me/creativeapis/pkg/picsart"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// batchOps are the operations batch can apply. Each builds a call for one
// input image.
var batchOps = map[string]func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult]{
	"removebg": func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult] {
		return img.RemoveBackground(picsart.RemoveBackgroundParams{Image: src, Format: b.imageFormat()})
	},
	"upscale": func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult] {
		return img.Upscale(picsart.UpscaleParams{Image: src, UpscaleFactor: picsart.Int(b.factor), Format: b.imageFormat()})
	},
	"ultra-enhance": func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult] {
		return img.UltraEnhance(picsart.UltraEnhanceParams{Image: src, UpscaleFactor: picsart.Int(b.factor), Format: b.imageFormat()})
	},
	"enhance-face": func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult] {
		return img.EnhanceFace(picsart.EnhanceFaceParams{Image: src, Format: b.imageFormat()})
	},
	"effect": func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult] {
		return img.Effect(picsart.EffectParams{Image: src, EffectName: b.effect, Format: b.imageFormat()})
	},
	"upload": func(img *picsart.ImageAPI, src picsart.ImageSource, b batchFlags) *picsart.Call[picsart.ImageResult] {
		return img.Upload(picsart.UploadParams{Image: src})
	},
}

type batchFlags struct {
	outDir      string
	format      string
	factor      int
	effect      string
	concurrency int
	failFast    bool
}

func (b batchFlags) imageFormat() picsart.ImageFormat {
	return picsart.ImageFormat(strings.ToUpper(b.format))
}

func batchOpNames() []string {
	names := make([]string, 0, len(batchOps))
	for name := range batchOps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func newBatchCmd() *cobra.Command {
	var b batchFlags
	cmd := &cobra.Command{
		Use:   "batch OPERATION IMAGE...",
		Short: "Apply one operation to many images concurrently",
		Long: "Apply one operation to many images, running up to --concurrency calls at once.\n" +
			"Operations: " + strings.Join(batchOpNames(), ", ") + ".\n" + sourceHelp,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			build, ok := batchOps[args[0]]
			if !ok {
				return fmt.Errorf("unknown operation %q (want one of %s)", args[0], strings.Join(batchOpNames(), ", "))
			}
			if args[0] == "effect" && b.effect == "" {
				return fmt.Errorf("--effect is required for the effect operation")
			}
			c, err := apiClient()
			if err != nil {
				return err
			}
			// Open the history before the workers start.
			if _, err := historyStore(cmd.Context()); err != nil {
				logger.Warn("history unavailable", "error", err)
			}

			inputs := args[1:]
			outcomes := make([]imageOutcome, len(inputs))
			errs := make([]error, len(inputs))
			var failed atomic.Int32

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(orDefault(b.concurrency, cfg.Concurrency), 1))
			for i, input := range inputs {
				g.Go(func() error {
					call := build(c.Image(), parseSource(input), b)
					out, err := execImage(ctx, call.Name(), input, destFor(b.outDir, input, b.imageFormat()), call)
					outcomes[i], errs[i] = out, err
					if err != nil {
						failed.Add(1)
						logger.Debug("batch item failed", "input", input, "error", err)
						if b.failFast {
							return fmt.Errorf("%s: %w", input, err)
						}
					}
					return nil
				})
			}
			groupErr := g.Wait()

			w := cmd.OutOrStdout()
			var total int64
			for i, input := range inputs {
				switch {
				case errs[i] != nil:
					fmt.Fprintf(w, "FAIL  %s  %v\n", input, errs[i])
				case outcomes[i].Saved != nil:
					total += outcomes[i].Saved.Bytes
					fmt.Fprintf(w, "OK    %s  %s\n", input, outcomes[i].Saved.Location)
				default:
					fmt.Fprintf(w, "OK    %s  %s\n", input, outcomes[i].Record.ImageURL)
				}
			}
			n := int(failed.Load())
			fmt.Fprintf(w, "\n%d of %d succeeded", len(inputs)-n, len(inputs))
			if total > 0 {
				fmt.Fprintf(w, ", %s saved", humanize.Bytes(uint64(total)))
			}
			fmt.Fprintln(w)

			if groupErr != nil {
				return groupErr
			}
			if n > 0 {
				return fmt.Errorf("%d of %d images failed", n, len(inputs))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&b.outDir, "out-dir", "", "Save results to a directory or s3://bucket/prefix")
	f.StringVar(&b.format, "format", "", "Output format (JPG, PNG, WEBP)")
	f.IntVar(&b.factor, "factor", 2, "Upscale factor for upscale and ultra-enhance")
	f.StringVar(&b.effect, "effect", "", "Effect name for the effect operation")
	f.IntVar(&b.concurrency, "concurrency", 0, "Calls in flight (default from config)")
	f.BoolVar(&b.failFast, "fail-fast", false, "Cancel remaining images after the first failure")
	return cmd
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
