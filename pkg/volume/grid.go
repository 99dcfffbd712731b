// Package volume holds the dense 3D sample grids the renderers traverse.
package volume

import (
	"fmt"
)

// Grid is a dense W x H x D array of 8-bit samples with x varying fastest.
// A Grid is built once and treated as read-only afterwards.
type Grid struct {
	width  int
	height int
	depth  int
	data   []uint8
}

// NewGrid allocates a zero-filled grid
func NewGrid(width, height, depth int) (*Grid, error) {
	if width < 1 || height < 1 || depth < 1 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%dx%d", width, height, depth)
	}
	return &Grid{
		width:  width,
		height: height,
		depth:  depth,
		data:   make([]uint8, width*height*depth),
	}, nil
}

// MustGrid is like NewGrid but panics on invalid dimensions
func MustGrid(width, height, depth int) *Grid {
	g, err := NewGrid(width, height, depth)
	if err != nil {
		panic(err)
	}
	return g
}

// Dims returns the grid dimensions
func (g *Grid) Dims() (width, height, depth int) {
	return g.width, g.height, g.depth
}

// Width returns the extent along x
func (g *Grid) Width() int { return g.width }

// Height returns the extent along y
func (g *Grid) Height() int { return g.height }

// Depth returns the extent along z
func (g *Grid) Depth() int { return g.depth }

// Len returns the total number of samples
func (g *Grid) Len() int { return len(g.data) }

// Contains reports whether (x, y, z) lies inside the grid
func (g *Grid) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.width && y < g.height && z < g.depth
}

// Get returns the sample at (x, y, z), or 0 for any index out of range
func (g *Grid) Get(x, y, z int) uint8 {
	if !g.Contains(x, y, z) {
		return 0
	}
	return g.data[(z*g.height+y)*g.width+x]
}

// Set stores a sample; out-of-range writes are ignored
func (g *Grid) Set(x, y, z int, v uint8) {
	if !g.Contains(x, y, z) {
		return
	}
	g.data[(z*g.height+y)*g.width+x] = v
}

// Layer returns the writable backing slice of depth layer z
func (g *Grid) Layer(z int) []uint8 {
	n := g.width * g.height
	return g.data[z*n : (z+1)*n]
}

// Data returns the backing samples in storage order. Callers must not modify
// a grid that is already shared with a renderer.
func (g *Grid) Data() []uint8 {
	return g.data
}

// Equal reports whether two grids have identical dims and samples
func (g *Grid) Equal(other *Grid) bool {
	if g.width != other.width || g.height != other.height || g.depth != other.depth {
		return false
	}
	for i := range g.data {
		if g.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// SameDims reports whether two grids share width, height and depth
func (g *Grid) SameDims(other *Grid) bool {
	return g.width == other.width && g.height == other.height && g.depth == other.depth
}
