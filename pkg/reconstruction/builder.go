package reconstruction

import (
	"fmt"

	"dvr/internal/models"
	"dvr/pkg/config"
	"dvr/pkg/volume"
)

// checkStack validates a slice sequence before it is stacked
func checkStack(slices []*models.Slice, thickness int) (width, height int, err error) {
	if thickness < 1 {
		return 0, 0, fmt.Errorf("%w: slice thickness must be >= 1, got %d", config.ErrConfig, thickness)
	}
	if len(slices) == 0 {
		return 0, 0, fmt.Errorf("%w: no slices to stack", config.ErrConfig)
	}
	width, height = slices[0].Width, slices[0].Height
	for i, s := range slices {
		if s.Width != width || s.Height != height {
			return 0, 0, fmt.Errorf("%w: slice %d is %dx%d, expected %dx%d",
				config.ErrConfig, i, s.Width, s.Height, width, height)
		}
	}
	return width, height, nil
}

// StackIntensity expands n slices into a grid of depth n*thickness. Real
// slice i lands on layer i*thickness and the layers between two real slices
// are linearly interpolated with truncating integer arithmetic. Layers after
// the last real slice stay zero.
func StackIntensity(slices []*models.Slice, thickness int) (*volume.Grid, error) {
	width, height, err := checkStack(slices, thickness)
	if err != nil {
		return nil, err
	}

	g, err := volume.NewGrid(width, height, len(slices)*thickness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	for i, s := range slices {
		copy(g.Layer(i*thickness), s.Data)
	}

	t := thickness
	for i := 0; i+1 < len(slices); i++ {
		prev := slices[i].Data
		next := slices[i+1].Data
		for l := 1; l < t; l++ {
			layer := g.Layer(i*t + l)
			for p := range layer {
				layer[p] = uint8((int(prev[p])*(t-l) + int(next[p])*l) / t)
			}
		}
	}

	return g, nil
}

// StackLabels expands label slices like StackIntensity, but filler layers
// copy the preceding real slice since label ids cannot be blended.
func StackLabels(slices []*models.Slice, thickness int) (*volume.Grid, error) {
	width, height, err := checkStack(slices, thickness)
	if err != nil {
		return nil, err
	}

	g, err := volume.NewGrid(width, height, len(slices)*thickness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	for i, s := range slices {
		copy(g.Layer(i*thickness), s.Data)
		if i+1 == len(slices) {
			break
		}
		for l := 1; l < thickness; l++ {
			copy(g.Layer(i*thickness+l), s.Data)
		}
	}

	return g, nil
}

// checkMask verifies that label slices line up with intensity slices
func checkMask(intensity, labels []*models.Slice) error {
	if len(labels) != len(intensity) {
		return fmt.Errorf("%w: %d label slices for %d intensity slices",
			config.ErrConfig, len(labels), len(intensity))
	}
	for i := range labels {
		if labels[i].Width != intensity[i].Width || labels[i].Height != intensity[i].Height {
			return fmt.Errorf("%w: label slice %d is %dx%d, intensity slice is %dx%d",
				config.ErrConfig, i, labels[i].Width, labels[i].Height, intensity[i].Width, intensity[i].Height)
		}
	}
	return nil
}
