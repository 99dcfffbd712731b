package raycast

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis-aligned bounding box
type Box struct {
	Min r3.Vec
	Max r3.Vec
}

// CenteredBox returns the box of a width x height x depth grid of cellSize
// voxels centered at the origin
func CenteredBox(width, height, depth int, cellSize float64) Box {
	half := r3.Vec{
		X: float64(width) * cellSize / 2,
		Y: float64(height) * cellSize / 2,
		Z: float64(depth) * cellSize / 2,
	}
	return Box{Min: r3.Scale(-1, half), Max: half}
}

// Intersect computes the parametric entry and exit distances of r through
// the box using the slab method. A zero direction component has an infinite
// reciprocal; the comparisons below never let a NaN from 0*Inf leak into the
// result. ok is false when the ray misses or the box lies behind the origin.
func (b Box) Intersect(r Ray) (tEnter, tExit float64, ok bool) {
	tEnter = math.Inf(-1)
	tExit = math.Inf(1)

	o := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	d := [3]float64{r.Dir.X, r.Dir.Y, r.Dir.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		inv := math.Inf(1)
		if d[i] != 0 {
			inv = 1 / d[i]
		}
		t1 := (lo[i] - o[i]) * inv
		t2 := (hi[i] - o[i]) * inv

		near, far := t1, t2
		if t2 < t1 {
			near, far = t2, t1
		}
		// NaN compares false and leaves the running bounds untouched
		if near > tEnter {
			tEnter = near
		}
		if far < tExit {
			tExit = far
		}
	}

	if tEnter > tExit || tExit < 0 {
		return 0, 0, false
	}
	return tEnter, tExit, true
}
