// Package display shows scene frames in a glfw window and maps keys to the
// scene's interactive controls.
package display

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rs/zerolog/log"

	"dvr/pkg/config"
	"dvr/pkg/gpu/opengl"
	"dvr/pkg/render"
	"dvr/pkg/scene"
)

func init() {
	// GLFW event handling must run on the main thread
	runtime.LockOSThread()
}

// Control steps applied per key press
const (
	OrbitStep      = 2.0
	ZoomStep       = 1.0
	BrightnessStep = 0.1
	WeightStep     = 0.05
)

// Window owns the glfw window, its GL context and the present pass
type Window struct {
	window    *glfw.Window
	presenter *presenter
	scene     *scene.Scene

	// label id adjusted by the weight keys
	label int

	frames    int
	lastStats time.Time
}

// NewWindow opens a window sized to the scene viewport and makes its OpenGL
// 4.3 core context current
func NewWindow(s *scene.Scene, title string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	width, height := s.Viewport()
	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	window.MakeContextCurrent()
	glfw.SwapInterval(1)

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	gl.ClearColor(0, 0, 0, 1)

	p, err := newPresenter()
	if err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, err
	}

	w := &Window{
		window:    window,
		presenter: p,
		scene:     s,
		label:     1,
		lastStats: time.Now(),
	}

	// Render at framebuffer resolution so HiDPI windows are not upscaled
	fw, fh := window.GetFramebufferSize()
	w.onResize(fw, fh)

	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.onResize(width, height)
	})
	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		w.onKey(key, action, mods)
	})

	return w, nil
}

// UseStrategy selects the scene strategy named by cfg. The GPU strategy
// needs the context created by NewWindow.
func (w *Window) UseStrategy(cfg *config.Config) error {
	switch cfg.Render.Strategy {
	case config.StrategyGPU:
		dev, err := opengl.NewDevice(cfg.Render.WorkgroupSize)
		if err != nil {
			return err
		}
		if err := w.scene.UseDevice(dev); err != nil {
			dev.Release()
			return err
		}
	default:
		w.scene.UseCPU(render.Options{Workers: cfg.Render.Workers, FlipY: true})
	}
	return nil
}

// Run renders and presents frames until the window is closed
func (w *Window) Run() error {
	for !w.window.ShouldClose() {
		out, err := w.scene.Render()
		if err != nil {
			return err
		}

		if out.OnDevice {
			width, height := w.scene.Viewport()
			w.presenter.drawBuffer(out.Buffer, width, height, w.scene.Brightness)
		} else {
			w.presenter.drawImage(out.Image, w.scene.Brightness)
		}

		w.window.SwapBuffers()
		glfw.PollEvents()
		w.stats()
	}
	return nil
}

func (w *Window) stats() {
	w.frames++
	if elapsed := time.Since(w.lastStats); elapsed >= time.Second {
		log.Debug().
			Float64("fps", float64(w.frames)/elapsed.Seconds()).
			Str("strategy", w.scene.Strategy().Name()).
			Msg("frame rate")
		w.frames = 0
		w.lastStats = time.Now()
	}
}

// Close releases the scene strategy and destroys the window
func (w *Window) Close() {
	w.scene.Release()
	w.presenter.release()
	w.window.Destroy()
	glfw.Terminate()
}

func (w *Window) onResize(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
	w.scene.Resize(width, height)
}

func (w *Window) onKey(key glfw.Key, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}

	s := w.scene
	switch key {
	case glfw.KeyEscape:
		w.window.SetShouldClose(true)
	case glfw.KeyLeft:
		s.Orbit(-OrbitStep)
	case glfw.KeyRight:
		s.Orbit(OrbitStep)
	case glfw.KeyUp:
		s.Zoom(-ZoomStep)
	case glfw.KeyDown:
		s.Zoom(ZoomStep)
	case glfw.KeyEqual, glfw.KeyKPAdd:
		s.AdjustBrightness(BrightnessStep)
	case glfw.KeyMinus, glfw.KeyKPSubtract:
		s.AdjustBrightness(-BrightnessStep)
	case glfw.KeyM:
		s.ToggleMask()
		log.Info().Bool("mask", s.Settings.MaskEnabled).Msg("mask toggled")
	case glfw.KeyC:
		s.CycleComposite()
		log.Info().Str("composite", s.Settings.Composite.String()).Msg("composite changed")
	case glfw.KeyLeftBracket:
		s.AdjustLabelWeight(w.label, -WeightStep)
	case glfw.KeyRightBracket:
		s.AdjustLabelWeight(w.label, WeightStep)
	default:
		if key >= glfw.Key1 && key <= glfw.Key9 {
			w.label = scene.LabelFromDigit(int(key-glfw.Key1)+1, mods&glfw.ModShift != 0)
			log.Info().Int("label", w.label).Msg("label selected")
		}
	}
}
