package pipeline

import (
	"context"
	"fmt"

	"github.com/rmitchellscott/ditherworks/internal/blur"
	"github.com/rmitchellscott/ditherworks/internal/config"
	"github.com/rmitchellscott/ditherworks/internal/dither"
	"github.com/rmitchellscott/ditherworks/internal/imageprocessing"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Input selects which form of the job image a stage receives.
type Input int

const (
	InputGray Input = iota
	InputColor
)

func (i Input) String() string {
	if i == InputColor {
		return "color"
	}
	return "gray"
}

// TitleFunc computes a stage title. It is called when the stage starts and
// again when it finishes, so titles may reflect aux state that arrived in
// between.
type TitleFunc func(aux *Aux) string

// ProcessFunc computes a stage result. It must not modify src.
type ProcessFunc func(ctx context.Context, src *pixbuf.Buffer[float32], aux *Aux) (*pixbuf.Buffer[float32], error)

// Stage is one entry of the pipeline.
type Stage struct {
	ID      string
	Title   TitleFunc
	Input   Input
	Process ProcessFunc
}

// Options parameterize the default stages.
type Options struct {
	Levels              int
	ColorLevels         int
	BayerLevels         int
	BlurSigma           float64
	RiemersmaQueue      int
	RiemersmaRatio      float64
	ColorRiemersmaRatio float64
}

// OptionsFrom maps pipeline configuration onto stage options.
func OptionsFrom(p config.Pipeline) Options {
	return Options{
		Levels:              p.Levels,
		ColorLevels:         p.ColorLevels,
		BayerLevels:         p.BayerLevels,
		BlurSigma:           p.BlurSigma,
		RiemersmaQueue:      p.Riemersma.Queue,
		RiemersmaRatio:      p.Riemersma.Ratio,
		ColorRiemersmaRatio: p.Riemersma.ColorRatio,
	}
}

func staticTitle(title string) TitleFunc {
	return func(*Aux) string { return title }
}

func blueNoiseTitle(aux *Aux) string {
	if d, ok := aux.BlueNoiseDuration(); ok {
		return fmt.Sprintf("Blue Noise (%.1fms)", float64(d.Microseconds())/1000)
	}
	return "Blue Noise (takes a bit...)"
}

func diffusionStage(id, title string, k dither.Kernel, q dither.Quantizer, input Input) Stage {
	return Stage{
		ID:    id,
		Title: staticTitle(title),
		Input: input,
		Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
			return dither.ErrorDiffusion(src, k, q)
		},
	}
}

// DefaultStages returns every stage in presentation order.
func DefaultStages(opts Options) []Stage {
	gray := dither.NewEvenPalette(opts.Levels)
	color := dither.NewFloorPalette(opts.ColorLevels)

	stages := []Stage{
		{
			ID:    "quantized",
			Title: staticTitle("Quantized"),
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
				return dither.Threshold(src, gray), nil
			},
		},
		{
			ID:    "random",
			Title: staticTitle("Random Dither"),
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], aux *Aux) (*pixbuf.Buffer[float32], error) {
				return dither.Random(src, gray, aux.Rand), nil
			},
		},
	}

	for level := 0; level < opts.BayerLevels; level++ {
		stages = append(stages, Stage{
			ID:    fmt.Sprintf("bayer-%d", level),
			Title: staticTitle(fmt.Sprintf("Bayer Level %d", level)),
			Process: func(ctx context.Context, src *pixbuf.Buffer[float32], aux *Aux) (*pixbuf.Buffer[float32], error) {
				mask, err := aux.BayerLevel(ctx, level)
				if err != nil {
					return nil, err
				}
				return dither.Ordered(src, mask, gray)
			},
		})
	}

	stages = append(stages,
		diffusionStage("2derrdiff", "Simple Error Diffusion", dither.Simple2D, gray, InputGray),
		diffusionStage("floydsteinberg", "Floyd-Steinberg Diffusion", dither.FloydSteinberg, gray, InputGray),
		diffusionStage("jjn", "Jarvis-Judice-Ninke Diffusion", dither.JarvisJudiceNinke, gray, InputGray),
		diffusionStage("atkinson", "Atkinson Dither", dither.Atkinson, gray, InputGray),
		Stage{
			ID:    "riemersma",
			Title: staticTitle("Riemersma Dither"),
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
				return dither.Riemersma(src, gray, opts.RiemersmaQueue, opts.RiemersmaRatio)
			},
		},
		Stage{
			ID:    "mybluenoise",
			Title: blueNoiseTitle,
			Process: func(ctx context.Context, src *pixbuf.Buffer[float32], aux *Aux) (*pixbuf.Buffer[float32], error) {
				mask, err := aux.BlueNoiseMask(ctx)
				if err != nil {
					return nil, err
				}
				return dither.BlueNoise(src, mask, gray)
			},
		},
		Stage{
			ID:    "blur-spatial",
			Title: staticTitle(fmt.Sprintf("Gaussian Blur σ=%g (spatial)", opts.BlurSigma)),
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], aux *Aux) (*pixbuf.Buffer[float32], error) {
				return blur.Spatial(aux.Blur, src, opts.BlurSigma)
			},
		},
		Stage{
			ID:    "blur-fft",
			Title: staticTitle(fmt.Sprintf("Gaussian Blur σ=%g (FFT)", opts.BlurSigma)),
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], aux *Aux) (*pixbuf.Buffer[float32], error) {
				return blur.FFTPadded(aux.Blur, src, opts.BlurSigma)
			},
		},
		Stage{
			ID:    "library-fs",
			Title: staticTitle("Floyd-Steinberg (dither library)"),
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
				return imageprocessing.LibraryFloydSteinberg(src, opts.Levels), nil
			},
		},
		diffusionStage("color-atkinson", "Color Atkinson Dither", dither.Atkinson, color, InputColor),
		Stage{
			ID:    "color-riemersma",
			Title: staticTitle("Color Riemersma Dither"),
			Input: InputColor,
			Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
				return dither.Riemersma(src, color, opts.RiemersmaQueue, opts.ColorRiemersmaRatio)
			},
		},
	)
	return stages
}

// Select keeps the stages named in ids, in declared order. An empty ids
// list selects every stage.
func Select(stages []Stage, ids []string) ([]Stage, error) {
	if len(ids) == 0 {
		return stages, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	selected := make([]Stage, 0, len(ids))
	for _, s := range stages {
		if wanted[s.ID] {
			selected = append(selected, s)
			delete(wanted, s.ID)
		}
	}
	for _, id := range ids {
		if wanted[id] {
			return nil, fmt.Errorf("unknown stage %q", id)
		}
	}
	return selected, nil
}
