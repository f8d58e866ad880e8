package cli

import (
	"fmt"
	"strings"

	"github.com/me/creativeapis/pkg/picsart"
	"github.com/spf13/cobra"
)

const sourceHelp = "IMAGE is a local file, an http(s) URL or id:<uploaded image id>."

func newUploadCmd() *cobra.Command {
	var o outputFlags
	cmd := &cobra.Command{
		Use:   "upload IMAGE",
		Short: "Upload an image and print its ID",
		Long:  "Upload stores an image with Picsart. The printed ID can be passed to other commands as id:<ID>.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().Upload(picsart.UploadParams{Image: parseSource(args[0])})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "Save the stored image to a file or s3://bucket/key")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the result as JSON")
	return cmd
}

func newRemoveBgCmd() *cobra.Command {
	var (
		o             outputFlags
		outputType    string
		bgImage       string
		bgColor       string
		bgBlur        int
		bgWidth       int
		bgHeight      int
		scale         string
		autoCenter    bool
		strokeSize    int
		strokeColor   string
		strokeOpacity int
	)
	cmd := &cobra.Command{
		Use:   "removebg IMAGE",
		Short: "Remove the background of an image",
		Long:  "Remove the background of an image. " + sourceHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().RemoveBackground(picsart.RemoveBackgroundParams{
				Image:         parseSource(args[0]),
				OutputType:    picsart.OutputType(outputType),
				BgImage:       parseSource(bgImage),
				BgColor:       bgColor,
				BgBlur:        optInt(cmd, "bg-blur", bgBlur),
				BgWidth:       optInt(cmd, "bg-width", bgWidth),
				BgHeight:      optInt(cmd, "bg-height", bgHeight),
				Scale:         picsart.Scale(scale),
				AutoCenter:    optBool(cmd, "auto-center", autoCenter),
				StrokeSize:    optInt(cmd, "stroke-size", strokeSize),
				StrokeColor:   strokeColor,
				StrokeOpacity: optInt(cmd, "stroke-opacity", strokeOpacity),
				Format:        o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	f := cmd.Flags()
	f.StringVar(&outputType, "output-type", "", "cutout or mask")
	f.StringVar(&bgImage, "bg-image", "", "Background image (file, URL or id:<ID>)")
	f.StringVar(&bgColor, "bg-color", "", "Background color name or hex code")
	f.IntVar(&bgBlur, "bg-blur", 0, "Background blur [0, 100]")
	f.IntVar(&bgWidth, "bg-width", 0, "Background width")
	f.IntVar(&bgHeight, "bg-height", 0, "Background height")
	f.StringVar(&scale, "scale", "", "fit or fill")
	f.BoolVar(&autoCenter, "auto-center", false, "Center the subject")
	f.IntVar(&strokeSize, "stroke-size", 0, "Outline size [0, 100]")
	f.StringVar(&strokeColor, "stroke-color", "", "Outline color")
	f.IntVar(&strokeOpacity, "stroke-opacity", 0, "Outline opacity [0, 100]")
	o.register(cmd)
	return cmd
}

func newEffectCmd() *cobra.Command {
	var o outputFlags
	cmd := &cobra.Command{
		Use:   "effect IMAGE EFFECT",
		Short: "Apply an effect to an image",
		Long:  "Apply a named effect to an image. Run 'picsart effects' for the list. " + sourceHelp,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().Effect(picsart.EffectParams{
				Image:      parseSource(args[0]),
				EffectName: args[1],
				Format:     o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	o.register(cmd)
	return cmd
}

func newEffectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "effects",
		Short: "List available effects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for name, err := range c.Image().Effects().All(cmd.Context()) {
				if err != nil {
					return fmt.Errorf("list effects: %w", err)
				}
				fmt.Fprintln(w, name)
			}
			return nil
		},
	}
}

func newPreviewsCmd() *cobra.Command {
	var (
		o       outputFlags
		effects []string
		size    int
	)
	cmd := &cobra.Command{
		Use:   "previews IMAGE",
		Short: "Render small previews of several effects",
		Long:  "Render up to ten effects applied to an image as thumbnails. " + sourceHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().EffectsPreviews(picsart.EffectsPreviewsParams{
				Image:       parseSource(args[0]),
				EffectNames: effects,
				PreviewSize: optInt(cmd, "size", size),
				Format:      o.imageFormat(),
			})
			res, err := call.Do(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if o.json {
				return printJSON(w, res.Previews)
			}
			fmt.Fprintf(w, "%-12s  %s\n", "EFFECT", "URL")
			fmt.Fprintf(w, "%-12s  %s\n", "------", "---")
			for _, p := range res.Previews {
				fmt.Fprintf(w, "%-12s  %s\n", p.EffectName, p.URL)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&effects, "effects", nil, "Comma-separated effect names (at most 10)")
	cmd.Flags().IntVar(&size, "size", 0, "Preview size in pixels")
	cmd.Flags().StringVar(&o.format, "format", "", "Output format (JPG, PNG, WEBP)")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the result as JSON")
	return cmd
}

func newUpscaleCmd() *cobra.Command {
	var (
		o      outputFlags
		factor int
	)
	cmd := &cobra.Command{
		Use:   "upscale IMAGE",
		Short: "Upscale an image by 2, 4, 6 or 8 times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().Upscale(picsart.UpscaleParams{
				Image:         parseSource(args[0]),
				UpscaleFactor: optInt(cmd, "factor", factor),
				Format:        o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	cmd.Flags().IntVar(&factor, "factor", 2, "Upscale factor")
	o.register(cmd)
	return cmd
}

func newUltraUpscaleCmd() *cobra.Command {
	var (
		o      outputFlags
		factor int
		mode   string
	)
	cmd := &cobra.Command{
		Use:   "ultra-upscale IMAGE",
		Short: "Upscale an image up to 16 times",
		Long:  "Upscale an image up to 16 times. In async mode the command waits for the job to finish. " + sourceHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().UltraUpscale(picsart.UltraUpscaleParams{
				Image:         parseSource(args[0]),
				UpscaleFactor: optInt(cmd, "factor", factor),
				Mode:          picsart.UpscaleMode(strings.ToLower(mode)),
				Format:        o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	cmd.Flags().IntVar(&factor, "factor", 2, "Upscale factor [2, 16]")
	cmd.Flags().StringVar(&mode, "mode", "", "sync, async or auto")
	o.register(cmd)
	return cmd
}

func newUltraEnhanceCmd() *cobra.Command {
	var (
		o      outputFlags
		factor int
	)
	cmd := &cobra.Command{
		Use:   "ultra-enhance IMAGE",
		Short: "Upscale an image and restore detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().UltraEnhance(picsart.UltraEnhanceParams{
				Image:         parseSource(args[0]),
				UpscaleFactor: optInt(cmd, "factor", factor),
				Format:        o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	cmd.Flags().IntVar(&factor, "factor", 2, "Upscale factor [2, 16]")
	o.register(cmd)
	return cmd
}

func newEnhanceFaceCmd() *cobra.Command {
	var o outputFlags
	cmd := &cobra.Command{
		Use:   "enhance-face IMAGE",
		Short: "Restore faces in a portrait",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().EnhanceFace(picsart.EnhanceFaceParams{
				Image:  parseSource(args[0]),
				Format: o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	o.register(cmd)
	return cmd
}

func newAdjustCmd() *cobra.Command {
	var o outputFlags
	names := []string{
		"brightness", "contrast", "clarity", "saturation", "hue", "shadows",
		"highlights", "temperature", "sharpen", "noise", "vignette",
	}
	values := make(map[string]*int, len(names))
	cmd := &cobra.Command{
		Use:   "adjust IMAGE",
		Short: "Apply tonal and color corrections",
		Long:  "Apply tonal and color corrections. Only the adjustments given as flags are changed. " + sourceHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			v := func(name string) *int { return optInt(cmd, name, *values[name]) }
			call := c.Image().Adjust(picsart.AdjustParams{
				Image:       parseSource(args[0]),
				Brightness:  v("brightness"),
				Contrast:    v("contrast"),
				Clarity:     v("clarity"),
				Saturation:  v("saturation"),
				Hue:         v("hue"),
				Shadows:     v("shadows"),
				Highlights:  v("highlights"),
				Temperature: v("temperature"),
				Sharpen:     v("sharpen"),
				Noise:       v("noise"),
				Vignette:    v("vignette"),
				Format:      o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	for _, name := range names {
		values[name] = cmd.Flags().Int(name, 0, "Adjust "+name)
	}
	o.register(cmd)
	return cmd
}

func newTextureCmd() *cobra.Command {
	var (
		o                outputFlags
		width, height    int
		offsetX, offsetY int
		pattern          string
		rotate           int
		scale            float64
	)
	cmd := &cobra.Command{
		Use:   "texture IMAGE",
		Short: "Tile an image into a background texture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().BackgroundTexture(picsart.BackgroundTextureParams{
				Image:   parseSource(args[0]),
				Width:   optInt(cmd, "width", width),
				Height:  optInt(cmd, "height", height),
				OffsetX: optInt(cmd, "offset-x", offsetX),
				OffsetY: optInt(cmd, "offset-y", offsetY),
				Pattern: picsart.TexturePattern(strings.ToLower(pattern)),
				Rotate:  optInt(cmd, "rotate", rotate),
				Scale:   optFloat(cmd, "scale", scale),
				Format:  o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	f := cmd.Flags()
	f.IntVar(&width, "width", 0, "Texture width")
	f.IntVar(&height, "height", 0, "Texture height")
	f.IntVar(&offsetX, "offset-x", 0, "Horizontal offset")
	f.IntVar(&offsetY, "offset-y", 0, "Vertical offset")
	f.StringVar(&pattern, "pattern", "", "hex, hex2, mirror, diamond or tile")
	f.IntVar(&rotate, "rotate", 0, "Rotation in degrees")
	f.Float64Var(&scale, "scale", 0, "Tile scale")
	o.register(cmd)
	return cmd
}

func newSurfaceMapCmd() *cobra.Command {
	var (
		o       outputFlags
		mask    string
		sticker string
	)
	cmd := &cobra.Command{
		Use:   "surfacemap IMAGE",
		Short: "Wrap a sticker onto a masked surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			call := c.Image().SurfaceMap(picsart.SurfaceMapParams{
				Image:   parseSource(args[0]),
				Mask:    parseSource(mask),
				Sticker: parseSource(sticker),
				Format:  o.imageFormat(),
			})
			return runImage(cmd, call.Name(), args[0], o, call)
		},
	}
	cmd.Flags().StringVar(&mask, "mask", "", "Mask image (file, URL or id:<ID>)")
	cmd.Flags().StringVar(&sticker, "sticker", "", "Sticker image (file, URL or id:<ID>)")
	o.register(cmd)
	return cmd
}

func newBalanceCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show remaining credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			res, err := c.Image().Balance().Do(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"credits": res.Credits})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credits: %s\n", humanizeCredits(res.Credits))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
