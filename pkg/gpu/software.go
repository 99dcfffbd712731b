package gpu

import (
	"fmt"
	"image"
	"sync"

	"dvr/pkg/raycast"
	"dvr/pkg/volume"
)

// SoftwareDevice executes the kernel on the host with the shared sampler.
// It stands in for a GL context in headless runs and tests.
type SoftwareDevice struct {
	mu       sync.Mutex
	cellSize float64
	sampler  *raycast.Sampler
	next     Handle
	buffers  map[Handle]*softBuffer

	// Dispatches counts kernel launches
	Dispatches int
}

type softBuffer struct {
	width  int
	height int
	words  []uint32
}

// NewSoftwareDevice creates a host device for volumes of the given cell size
func NewSoftwareDevice(cellSize float64) *SoftwareDevice {
	return &SoftwareDevice{
		cellSize: cellSize,
		next:     1,
		buffers:  make(map[Handle]*softBuffer),
	}
}

func (d *SoftwareDevice) UploadVolume(vol, labels *volume.Grid) error {
	s, err := raycast.NewSampler(vol, labels, d.cellSize)
	if err != nil {
		return fmt.Errorf("upload volume: %w", err)
	}
	d.mu.Lock()
	d.sampler = s
	d.mu.Unlock()
	return nil
}

func (d *SoftwareDevice) AllocResult(width, height int) (Handle, error) {
	if width < 1 || height < 1 {
		return 0, fmt.Errorf("invalid result buffer size %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.next
	d.next++
	d.buffers[h] = &softBuffer{width: width, height: height, words: make([]uint32, width*height)}
	return h, nil
}

func (d *SoftwareDevice) FreeResult(h Handle) {
	d.mu.Lock()
	delete(d.buffers, h)
	d.mu.Unlock()
}

// Live returns the number of allocated result buffers
func (d *SoftwareDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *SoftwareDevice) Dispatch(in, out Handle, p *KernelParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampler == nil {
		return fmt.Errorf("dispatch before volume upload")
	}
	if _, ok := d.buffers[in]; !ok {
		return fmt.Errorf("unknown input buffer %d", in)
	}
	dst, ok := d.buffers[out]
	if !ok {
		return fmt.Errorf("unknown output buffer %d", out)
	}
	if in == out {
		return fmt.Errorf("input and output buffer are both %d", in)
	}
	if p.Projector == nil || int(p.Resolution[0]) != dst.width || int(p.Resolution[1]) != dst.height {
		return fmt.Errorf("resolution %v does not match buffer %dx%d", p.Resolution, dst.width, dst.height)
	}

	st := p.Settings
	st.MaskEnabled = p.MaskEnabled != 0
	for y := 0; y < dst.height; y++ {
		for x := 0; x < dst.width; x++ {
			dst.words[y*dst.width+x] = PackRGBA(d.sampler.Pixel(p.Projector, x, y, &st))
		}
	}
	d.Dispatches++
	return nil
}

func (d *SoftwareDevice) ReadResult(h Handle, dst *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers[h]
	if !ok {
		return fmt.Errorf("unknown buffer %d", h)
	}
	if dst.Rect.Dx() != buf.width || dst.Rect.Dy() != buf.height {
		return fmt.Errorf("destination is %dx%d, buffer is %dx%d", dst.Rect.Dx(), dst.Rect.Dy(), buf.width, buf.height)
	}
	for y := 0; y < buf.height; y++ {
		for x := 0; x < buf.width; x++ {
			dst.SetRGBA(dst.Rect.Min.X+x, dst.Rect.Min.Y+y, UnpackRGBA(buf.words[y*buf.width+x]))
		}
	}
	return nil
}

func (d *SoftwareDevice) Release() {
	d.mu.Lock()
	d.buffers = make(map[Handle]*softBuffer)
	d.sampler = nil
	d.mu.Unlock()
}
