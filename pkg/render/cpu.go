package render

import (
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dvr/pkg/raycast"
)

// Options configures the CPU renderer
type Options struct {
	// Workers is the number of render goroutines; 0 uses NumCPU
	Workers int

	// FlipY writes row y at H-1-y for bottom-left origin textures
	FlipY bool
}

// CPURenderer renders frames with a pool of goroutines. It is not safe for
// concurrent use: the returned frame is overwritten by the next Render call.
type CPURenderer struct {
	sampler *raycast.Sampler
	workers int
	flipY   bool
	frame   *image.RGBA
}

// NewCPURenderer creates a renderer over sampler
func NewCPURenderer(sampler *raycast.Sampler, opts Options) *CPURenderer {
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &CPURenderer{
		sampler: sampler,
		workers: workers,
		flipY:   opts.FlipY,
	}
}

// Workers returns the number of render goroutines
func (r *CPURenderer) Workers() int { return r.workers }

// Render draws one frame. The camera is validated once before any pixel is
// touched; a degenerate camera fails the frame.
func (r *CPURenderer) Render(f raycast.Frame) (*image.RGBA, error) {
	proj, err := raycast.NewProjector(f.Camera, f.Width, f.Height)
	if err != nil {
		return nil, fmt.Errorf("cpu render: %w", err)
	}

	if r.frame == nil || r.frame.Rect.Dx() != f.Width || r.frame.Rect.Dy() != f.Height {
		r.frame = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	}

	start := time.Now()
	settings := f.Settings
	sched := NewScheduler(f.Height, r.workers)
	pix := r.frame.Pix
	stride := r.frame.Stride

	// Each pixel is owned by exactly one worker; no locking on the buffer
	var wg sync.WaitGroup
	wg.Add(r.workers)
	for w := 0; w < r.workers; w++ {
		go func() {
			defer wg.Done()
			for {
				y0, y1, ok := sched.Next()
				if !ok {
					return
				}
				for y := y0; y < y1; y++ {
					row := y
					if r.flipY {
						row = f.Height - 1 - y
					}
					off := row * stride
					for x := 0; x < f.Width; x++ {
						c := r.sampler.Pixel(proj, x, y, &settings)
						i := off + x*4
						pix[i+0] = c.R
						pix[i+1] = c.G
						pix[i+2] = c.B
						pix[i+3] = c.A
					}
				}
			}
		}()
	}
	wg.Wait()

	log.Debug().
		Int("width", f.Width).
		Int("height", f.Height).
		Int("workers", r.workers).
		Dur("elapsed", time.Since(start)).
		Msg("cpu frame rendered")

	return r.frame, nil
}
