package gpu

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"dvr/pkg/raycast"
	"dvr/pkg/volume"
)

// Renderer drives a Device with one dispatch per frame
type Renderer struct {
	dev      Device
	vol      *volume.Grid
	hasMask  bool
	cellSize float64
	box      raycast.Box
	buffers  *PingPong[Handle]
	width    int
	height   int
}

// NewRenderer uploads the volume to dev. Result buffers are allocated on
// the first frame.
func NewRenderer(dev Device, vol, labels *volume.Grid, cellSize float64) (*Renderer, error) {
	if vol == nil {
		return nil, fmt.Errorf("gpu renderer needs a volume")
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %g", cellSize)
	}
	if err := dev.UploadVolume(vol, labels); err != nil {
		return nil, err
	}
	w, h, d := vol.Dims()
	return &Renderer{
		dev:      dev,
		vol:      vol,
		hasMask:  labels != nil,
		cellSize: cellSize,
		box:      raycast.CenteredBox(w, h, d, cellSize),
	}, nil
}

// resize reallocates the result pair for a new viewport; the volume stays
// resident
func (r *Renderer) resize(width, height int) error {
	r.freeBuffers()

	a, err := r.dev.AllocResult(width, height)
	if err != nil {
		return fmt.Errorf("allocating result buffer: %w", err)
	}
	b, err := r.dev.AllocResult(width, height)
	if err != nil {
		r.dev.FreeResult(a)
		return fmt.Errorf("allocating result buffer: %w", err)
	}

	r.buffers = NewPingPong(a, b)
	r.width, r.height = width, height
	log.Debug().Int("width", width).Int("height", height).Msg("gpu result buffers allocated")
	return nil
}

func (r *Renderer) freeBuffers() {
	if r.buffers == nil {
		return
	}
	a, b := r.buffers.Buffers()
	r.dev.FreeResult(a)
	r.dev.FreeResult(b)
	r.buffers = nil
}

// Render dispatches one frame and returns the buffer holding it
func (r *Renderer) Render(f raycast.Frame) (Handle, error) {
	proj, err := raycast.NewProjector(f.Camera, f.Width, f.Height)
	if err != nil {
		return 0, fmt.Errorf("gpu render: %w", err)
	}

	if r.buffers == nil || f.Width != r.width || f.Height != r.height {
		if err := r.resize(f.Width, f.Height); err != nil {
			return 0, err
		}
	}

	params := NewKernelParams(proj, f.Settings, r.box, r.cellSize, r.vol, r.hasMask)
	if err := r.dev.Dispatch(r.buffers.Read(), r.buffers.Write(), params); err != nil {
		return 0, fmt.Errorf("gpu dispatch: %w", err)
	}
	r.buffers.Swap()

	return r.buffers.Read(), nil
}

// Read returns the buffer written by the latest dispatch
func (r *Renderer) Read() Handle {
	if r.buffers == nil {
		return 0
	}
	return r.buffers.Read()
}

// Generation returns the number of frames dispatched since the last resize
func (r *Renderer) Generation() uint64 {
	if r.buffers == nil {
		return 0
	}
	return r.buffers.Generation()
}

// Device returns the underlying device
func (r *Renderer) Device() Device { return r.dev }

// Release frees the result buffers and the device
func (r *Renderer) Release() {
	r.freeBuffers()
	r.dev.Release()
}
