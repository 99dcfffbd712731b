// Package scene owns everything a render loop needs: the built grids, the
// label palette, the camera and the chosen execution strategy. The grids are
// built once and never change; camera and settings are copied into every
// frame so a strategy always sees a consistent snapshot.
package scene

import (
	"fmt"
	"image"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/spatial/r3"

	"dvr/pkg/config"
	"dvr/pkg/gpu"
	"dvr/pkg/raycast"
	"dvr/pkg/reconstruction"
	"dvr/pkg/render"
	"dvr/pkg/volume"
)

// Display limits
const (
	MinBrightness = 0.0
	MaxBrightness = 10.0
)

// Scene is the render context shared by the window loop and the strategies
type Scene struct {
	vol      *volume.Grid
	labels   *volume.Grid
	cellSize float64
	sampler  *raycast.Sampler

	// Camera and Settings are read as a snapshot at the start of each frame
	Camera   raycast.Camera
	Settings raycast.Settings

	// Brightness multiplies RGB in the display pass
	Brightness float64

	orbitAngle  float64
	orbitRadius float64

	width  int
	height int

	strategy Strategy
}

// New creates a scene over already built grids. labels may be nil.
func New(vol, labels *volume.Grid, cellSize float64) (*Scene, error) {
	sampler, err := raycast.NewSampler(vol, labels, cellSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	return &Scene{
		vol:         vol,
		labels:      labels,
		cellSize:    cellSize,
		sampler:     sampler,
		Camera:      raycast.CPUPreset,
		Settings:    raycast.DefaultSettings(),
		Brightness:  1,
		orbitAngle:  270,
		orbitRadius: 30,
		width:       1,
		height:      1,
	}, nil
}

// Build runs the volume builder and applies the render, camera, display and
// palette sections of cfg
func Build(cfg *config.Config) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	r := reconstruction.NewReconstructor(params)
	if err := r.Process(); err != nil {
		return nil, err
	}

	s, err := New(r.GetVolume(), r.GetLabels(), cfg.Volume.CellSize)
	if err != nil {
		return nil, err
	}
	if err := s.Configure(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure applies the runtime sections of cfg
func (s *Scene) Configure(cfg *config.Config) error {
	composite, err := raycast.ParseComposite(cfg.Render.Composite)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	palette, err := PaletteFromConfig(cfg.Labels)
	if err != nil {
		return err
	}

	s.Settings = raycast.Settings{
		Step:        cfg.Render.StepSize,
		Composite:   composite,
		MaskEnabled: cfg.Display.MaskEnabled,
		Palette:     palette,
	}

	c := cfg.Camera
	s.Camera = raycast.Camera{
		Position: r3.Vec{X: c.Position[0], Y: c.Position[1], Z: c.Position[2]},
		Target:   r3.Vec{X: c.Target[0], Y: c.Target[1], Z: c.Target[2]},
		Up:       r3.Vec{X: c.Up[0], Y: c.Up[1], Z: c.Up[2]},
		FovY:     raycast.ClampFov(c.FovY),
	}
	s.orbitAngle = c.OrbitAngle
	s.orbitRadius = c.OrbitRadius

	// An untouched camera section follows the preset of the chosen strategy
	if cfg.Render.Strategy == config.StrategyGPU && c == config.DefaultConfig().Camera {
		s.Camera = raycast.GPUPreset
		s.orbitRadius = r3.Norm(r3.Sub(s.Camera.Position, s.Camera.Target))
	}
	s.Brightness = clamp(cfg.Display.Brightness, MinBrightness, MaxBrightness)
	s.width, s.height = cfg.Render.Width, cfg.Render.Height

	return nil
}

// PaletteFromConfig overlays the configured label styles on the default
// palette
func PaletteFromConfig(labels []config.LabelStyle) (raycast.Palette, error) {
	p := raycast.DefaultPalette()
	for _, l := range labels {
		if err := p.Set(l.ID, raycast.LabelStyle{Tint: l.Color, Weight: l.Weight}); err != nil {
			return p, fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
	}
	return p, nil
}

// Sampler returns the shared sampler over the scene grids
func (s *Scene) Sampler() *raycast.Sampler { return s.sampler }

// Volume returns the intensity grid
func (s *Scene) Volume() *volume.Grid { return s.vol }

// Labels returns the label grid, or nil
func (s *Scene) Labels() *volume.Grid { return s.labels }

// HasMask reports whether a label grid exists
func (s *Scene) HasMask() bool { return s.labels != nil }

// UseCPU switches to the CPU strategy
func (s *Scene) UseCPU(opts render.Options) {
	s.use(NewCPUStrategy(s.sampler, opts))
}

// UseDevice switches to the GPU strategy on dev
func (s *Scene) UseDevice(dev gpu.Device) error {
	st, err := NewGPUStrategy(dev, s.vol, s.labels, s.cellSize)
	if err != nil {
		return err
	}
	s.use(st)
	return nil
}

func (s *Scene) use(st Strategy) {
	if s.strategy != nil {
		s.strategy.Release()
	}
	s.strategy = st
	log.Debug().Str("strategy", st.Name()).Msg("render strategy selected")
}

// Strategy returns the active strategy, or nil
func (s *Scene) Strategy() Strategy { return s.strategy }

// Resize sets the viewport; result buffers follow on the next frame
func (s *Scene) Resize(width, height int) {
	if width < 1 || height < 1 {
		return
	}
	s.width, s.height = width, height
}

// Viewport returns the current viewport size
func (s *Scene) Viewport() (width, height int) { return s.width, s.height }

// Frame snapshots the camera and settings for one render
func (s *Scene) Frame() raycast.Frame {
	return raycast.Frame{
		Camera:   s.Camera,
		Width:    s.width,
		Height:   s.height,
		Settings: s.Settings,
	}
}

// Render draws one frame with the active strategy
func (s *Scene) Render() (Output, error) {
	if s.strategy == nil {
		return Output{}, fmt.Errorf("no render strategy selected")
	}
	return s.strategy.Render(s.Frame())
}

// Snapshot renders one frame and returns it in host memory. Device frames
// are copied back when the device implements gpu.ResultReader.
func (s *Scene) Snapshot() (*image.RGBA, error) {
	out, err := s.Render()
	if err != nil {
		return nil, err
	}
	if !out.OnDevice {
		return out.Image, nil
	}

	gs, ok := s.strategy.(*gpuStrategy)
	if !ok {
		return nil, fmt.Errorf("strategy %s has no device", s.strategy.Name())
	}
	reader, ok := gs.r.Device().(gpu.ResultReader)
	if !ok {
		return nil, fmt.Errorf("device cannot read results back")
	}
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	if err := reader.ReadResult(out.Buffer, img); err != nil {
		return nil, err
	}
	return img, nil
}

// Orbit rotates the camera around its target by delta degrees
func (s *Scene) Orbit(delta float64) {
	s.orbitAngle += delta
	for s.orbitAngle >= 360 {
		s.orbitAngle -= 360
	}
	for s.orbitAngle < 0 {
		s.orbitAngle += 360
	}
	s.Camera = raycast.Orbit(s.Camera.Target, s.orbitAngle, s.orbitRadius, s.Camera.Up, s.Camera.FovY)
}

// Zoom changes the field of view by delta degrees within the allowed range
func (s *Scene) Zoom(delta float64) {
	s.Camera.FovY = raycast.ClampFov(s.Camera.FovY + delta)
}

// AdjustBrightness changes the display brightness within [0, 10]
func (s *Scene) AdjustBrightness(delta float64) {
	s.Brightness = clamp(s.Brightness+delta, MinBrightness, MaxBrightness)
}

// ToggleMask flips label overlays; it is a no-op without a label grid
func (s *Scene) ToggleMask() {
	if s.labels == nil {
		return
	}
	s.Settings.MaskEnabled = !s.Settings.MaskEnabled
}

// CycleComposite switches between additive and maximum intensity
func (s *Scene) CycleComposite() {
	if s.Settings.Composite == raycast.Additive {
		s.Settings.Composite = raycast.MaxIntensity
	} else {
		s.Settings.Composite = raycast.Additive
	}
}

// AdjustLabelWeight changes the opacity weight of one label
func (s *Scene) AdjustLabelWeight(id int, delta float64) {
	s.Settings.Palette.AdjustWeight(id, delta)
}

// LabelFromDigit maps a digit key (1-9) to a label id. Shifted digits reach
// ids 10 and up; the result is clamped to the palette.
func LabelFromDigit(digit int, shifted bool) int {
	id := digit
	if shifted {
		id += 9
	}
	return max(1, min(id, raycast.MaxLabels-1))
}

// Release frees the active strategy
func (s *Scene) Release() {
	if s.strategy != nil {
		s.strategy.Release()
		s.strategy = nil
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
