package scene

import (
	"image"

	"dvr/pkg/gpu"
	"dvr/pkg/raycast"
	"dvr/pkg/render"
	"dvr/pkg/volume"
)

// Output is one rendered frame. CPU strategies fill Image; device
// strategies leave the pixels on the device and report the buffer.
type Output struct {
	Image    *image.RGBA
	Buffer   gpu.Handle
	OnDevice bool
}

// Strategy renders frames of a scene
type Strategy interface {
	Name() string
	Render(f raycast.Frame) (Output, error)
	Release()
}

type cpuStrategy struct {
	r *render.CPURenderer
}

// NewCPUStrategy renders on the host with a goroutine pool
func NewCPUStrategy(sampler *raycast.Sampler, opts render.Options) Strategy {
	return &cpuStrategy{r: render.NewCPURenderer(sampler, opts)}
}

func (s *cpuStrategy) Name() string { return "cpu" }

func (s *cpuStrategy) Render(f raycast.Frame) (Output, error) {
	img, err := s.r.Render(f)
	if err != nil {
		return Output{}, err
	}
	return Output{Image: img}, nil
}

func (s *cpuStrategy) Release() {}

type gpuStrategy struct {
	r *gpu.Renderer
}

// NewGPUStrategy uploads the grids to dev and renders with one dispatch per
// frame
func NewGPUStrategy(dev gpu.Device, vol, labels *volume.Grid, cellSize float64) (Strategy, error) {
	r, err := gpu.NewRenderer(dev, vol, labels, cellSize)
	if err != nil {
		return nil, err
	}
	return &gpuStrategy{r: r}, nil
}

func (s *gpuStrategy) Name() string { return "gpu" }

func (s *gpuStrategy) Render(f raycast.Frame) (Output, error) {
	h, err := s.r.Render(f)
	if err != nil {
		return Output{}, err
	}
	return Output{Buffer: h, OnDevice: true}, nil
}

func (s *gpuStrategy) Release() { s.r.Release() }
