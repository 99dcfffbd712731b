package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"dvr/pkg/config"
	"dvr/pkg/gpu"
	"dvr/pkg/reconstruction"
	"dvr/pkg/render"
	"dvr/pkg/scene"
	"dvr/pkg/visualization"
	"dvr/pkg/visualization/display"
)

func main() {
	app := &cli.App{
		Name:  "dvr",
		Usage: "direct volume rendering of stacked cross-section slices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file (defaults when empty or missing)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "debug logging",
			},
		},
		Before: func(cCtx *cli.Context) error {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if cCtx.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "view",
				Usage: "open an interactive ray casting window",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "strategy", Usage: "cpu or gpu"},
					&cli.IntFlag{Name: "width", Usage: "viewport width"},
					&cli.IntFlag{Name: "height", Usage: "viewport height"},
					&cli.StringFlag{Name: "composite", Usage: "additive or mip"},
				},
				Action: viewCommand,
			},
			{
				Name:  "info",
				Usage: "build the volume and print its statistics",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "intermediary-dir", Usage: "save built layers as PNG to this directory"},
				},
				Action: infoCommand,
			},
			{
				Name:  "slices",
				Usage: "export axis slices and projections of the built volume",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "reconstructed_slices", Usage: "output directory"},
					&cli.StringSliceFlag{Name: "axis", Value: cli.NewStringSlice("x", "y", "z"), Usage: "axes to export"},
					&cli.BoolFlag{Name: "overlay", Usage: "tint labelled voxels"},
					&cli.BoolFlag{Name: "mip", Usage: "also write a maximum intensity projection per axis"},
					&cli.IntSliceFlag{Name: "region", Usage: "export only the subregion x,y,z,width,height,depth"},
				},
				Action: slicesCommand,
			},
			{
				Name:  "snapshot",
				Usage: "render one frame without a window and save it as PNG",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "frame.png", Usage: "output image"},
					&cli.StringFlag{Name: "strategy", Usage: "cpu, or gpu on the host device"},
					&cli.IntFlag{Name: "width", Usage: "viewport width"},
					&cli.IntFlag{Name: "height", Usage: "viewport height"},
					&cli.StringFlag{Name: "composite", Usage: "additive or mip"},
					&cli.Float64Flag{Name: "orbit", Usage: "orbit the camera by this many degrees first"},
				},
				Action: snapshotCommand,
			},
			{
				Name:      "init",
				Usage:     "write a default configuration file",
				ArgsUsage: "<path>",
				Action: func(cCtx *cli.Context) error {
					path := cCtx.Args().First()
					if path == "" {
						path = "dvr.yaml"
					}
					if err := config.CreateDefaultConfigFile(path); err != nil {
						return err
					}
					log.Info().Str("path", path).Msg("default configuration written")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("dvr failed")
	}
}

func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(cCtx.String("config"))
	if err != nil {
		return nil, err
	}
	if cCtx.Bool("verbose") {
		cfg.Output.Verbose = true
	}
	return cfg, nil
}

// applyRenderFlags copies the render overrides of a command onto cfg
func applyRenderFlags(cCtx *cli.Context, cfg *config.Config) {
	if s := cCtx.String("strategy"); s != "" {
		cfg.Render.Strategy = s
	}
	if w := cCtx.Int("width"); w > 0 {
		cfg.Render.Width = w
	}
	if h := cCtx.Int("height"); h > 0 {
		cfg.Render.Height = h
	}
	if c := cCtx.String("composite"); c != "" {
		cfg.Render.Composite = c
	}
}

func viewCommand(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	applyRenderFlags(cCtx, cfg)

	start := time.Now()
	s, err := scene.Build(cfg)
	if err != nil {
		return err
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("volume built")

	win, err := display.NewWindow(s, cfg.Display.Title)
	if err != nil {
		return err
	}
	defer win.Close()

	if err := win.UseStrategy(cfg); err != nil {
		return err
	}
	log.Info().Str("strategy", s.Strategy().Name()).Msg("rendering")
	return win.Run()
}

func buildVolume(cfg *config.Config) (*reconstruction.Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return buildWith(params)
}

func buildWith(params *reconstruction.Params) (*reconstruction.Reconstructor, error) {
	r := reconstruction.NewReconstructor(params)
	if err := r.Process(); err != nil {
		return nil, err
	}
	return r, nil
}

func infoCommand(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	if dir := cCtx.String("intermediary-dir"); dir != "" {
		params.SaveIntermediaryResults = true
		params.IntermediaryDir = dir
	}

	start := time.Now()
	r, err := buildWith(params)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	w, h, d := r.GetVolume().Dims()
	stats := r.GetStats()

	fmt.Printf("Volume: %d x %d x %d (%d voxels)\n", w, h, d, r.GetVolume().Len())
	fmt.Printf("Built in %.3f seconds\n", elapsed.Seconds())
	fmt.Printf("Label mask: %v\n\n", r.HasMask())
	fmt.Printf("Intensity statistics:\n")
	fmt.Printf("=====================\n")
	fmt.Printf("Mean: %.3f\n", stats.Mean)
	fmt.Printf("Std deviation: %.3f\n", stats.StdDev)
	fmt.Printf("Min / Max: %d / %d\n", stats.Min, stats.Max)
	fmt.Printf("Non-zero voxels: %.2f%%\n", stats.NonZero*100)
	return nil
}

func slicesCommand(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	r, err := buildVolume(cfg)
	if err != nil {
		return err
	}
	palette, err := scene.PaletteFromConfig(cfg.Labels)
	if err != nil {
		return err
	}

	viewer := visualization.NewViewer(r.GetVolume(), r.GetLabels(), palette)
	if region := cCtx.IntSlice("region"); len(region) > 0 {
		if len(region) != 6 {
			return fmt.Errorf("%w: region needs x,y,z,width,height,depth, got %v", config.ErrConfig, region)
		}
		if viewer, err = viewer.Crop(region[0], region[1], region[2], region[3], region[4], region[5]); err != nil {
			return err
		}
	}
	outputDir := cCtx.String("output")

	for _, axis := range cCtx.StringSlice("axis") {
		axisDir := filepath.Join(outputDir, axis)
		log.Info().Str("axis", axis).Str("dir", axisDir).Msg("saving slices")
		if err := viewer.SaveSliceSequence(axis, axisDir, cCtx.Bool("overlay")); err != nil {
			return fmt.Errorf("failed to save %s-axis slices: %w", axis, err)
		}

		if cCtx.Bool("mip") {
			img, err := viewer.Project(axis)
			if err != nil {
				return err
			}
			name := filepath.Join(outputDir, fmt.Sprintf("mip_%s.png", axis))
			if err := viewer.SaveSlice(img, name); err != nil {
				return err
			}
		}
	}

	log.Info().Str("dir", outputDir).Msg("slice extraction completed")
	return nil
}

func snapshotCommand(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	applyRenderFlags(cCtx, cfg)

	s, err := scene.Build(cfg)
	if err != nil {
		return err
	}
	defer s.Release()

	if cfg.Render.Strategy == config.StrategyGPU {
		if err := s.UseDevice(gpu.NewSoftwareDevice(cfg.Volume.CellSize)); err != nil {
			return err
		}
	} else {
		s.UseCPU(render.Options{Workers: cfg.Render.Workers})
	}
	if o := cCtx.Float64("orbit"); o != 0 {
		s.Orbit(o)
	}

	start := time.Now()
	img, err := s.Snapshot()
	if err != nil {
		return err
	}
	log.Info().Dur("elapsed", time.Since(start)).Str("strategy", s.Strategy().Name()).Msg("frame rendered")

	output := cCtx.String("output")
	viewer := visualization.NewViewer(s.Volume(), s.Labels(), s.Settings.Palette)
	if err := viewer.SaveSlice(img, output); err != nil {
		return fmt.Errorf("failed to save %s: %w", output, err)
	}
	log.Info().Str("path", output).Msg("snapshot saved")
	return nil
}
