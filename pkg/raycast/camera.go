// Package raycast holds the math shared by every render strategy: per-pixel
// ray generation, ray/box intersection and voxel compositing.
package raycast

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerateCamera is returned when no view basis can be built from a
// camera, e.g. when position equals target.
var ErrDegenerateCamera = errors.New("degenerate camera")

// FOV limits applied by interactive controls
const (
	MinFovY = 10.0
	MaxFovY = 150.0
)

// Camera is a perspective camera snapshot
type Camera struct {
	Position r3.Vec
	Target   r3.Vec
	Up       r3.Vec

	// FovY is the vertical field of view in degrees
	FovY float64
}

// Ray is a half-line starting at Origin
type Ray struct {
	Origin r3.Vec
	Dir    r3.Vec
}

// At returns the point at parameter t along the ray
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Dir))
}

// Presets used by the viewer for each strategy
var (
	CPUPreset = Camera{
		Position: r3.Vec{X: 0, Y: 0, Z: -30},
		Up:       r3.Vec{X: 0, Y: 1, Z: 0},
		FovY:     120,
	}
	GPUPreset = Camera{
		Position: r3.Vec{X: 0, Y: 0, Z: -128},
		Up:       r3.Vec{X: 0, Y: 1, Z: 0},
		FovY:     45,
	}
)

// ClampFov limits a field of view to [MinFovY, MaxFovY]
func ClampFov(fov float64) float64 {
	return math.Max(MinFovY, math.Min(MaxFovY, fov))
}

// Orbit places a camera on a horizontal circle of the given radius around
// target, looking at it. The up vector is re-orthogonalized against the view
// direction.
func Orbit(target r3.Vec, angleDeg, radius float64, up r3.Vec, fovY float64) Camera {
	a := angleDeg * math.Pi / 180
	pos := r3.Add(target, r3.Vec{X: radius * math.Cos(a), Y: 0, Z: radius * math.Sin(a)})

	forward := r3.Unit(r3.Sub(target, pos))
	right := r3.Cross(up, forward)
	if r3.Norm(right) > 0 {
		up = r3.Unit(r3.Cross(forward, r3.Unit(right)))
	}

	return Camera{Position: pos, Target: target, Up: up, FovY: fovY}
}

// Projector holds the per-frame view basis. It is computed once per frame
// and shared by every pixel.
type Projector struct {
	Origin     r3.Vec
	Forward    r3.Vec
	Up         r3.Vec
	Horizontal r3.Vec

	// D is the focal distance 1/tan(fovY/2)
	D float64

	Aspect float64
	Width  int
	Height int
}

// NewProjector validates the camera and precomputes its view basis for a
// width x height viewport
func NewProjector(cam Camera, width, height int) (*Projector, error) {
	if width < 1 || height < 1 {
		return nil, errors.New("viewport must be at least 1x1")
	}

	view := r3.Sub(cam.Target, cam.Position)
	if r3.Norm(view) == 0 {
		return nil, ErrDegenerateCamera
	}
	if cam.FovY <= 0 || cam.FovY >= 180 {
		return nil, ErrDegenerateCamera
	}

	forward := r3.Unit(view)
	horizontal := r3.Cross(cam.Up, forward)
	if r3.Norm(horizontal) == 0 {
		return nil, ErrDegenerateCamera
	}

	return &Projector{
		Origin:     cam.Position,
		Forward:    forward,
		Up:         cam.Up,
		Horizontal: horizontal,
		D:          1 / math.Tan(cam.FovY*math.Pi/180/2),
		Aspect:     float64(width) / float64(height),
		Width:      width,
		Height:     height,
	}, nil
}

// Ray returns the primary ray through pixel (x, y). Pixel (0, 0) is the top
// left corner of the viewport.
func (p *Projector) Ray(x, y int) Ray {
	normX := (float64(x)/float64(p.Width) - 0.5) * 2
	normY := (float64(y)/float64(p.Height) - 0.5) * 2

	dir := r3.Scale(p.D, p.Forward)
	dir = r3.Add(dir, r3.Scale(-normY, p.Up))
	dir = r3.Add(dir, r3.Scale(normX*p.Aspect, p.Horizontal))

	return Ray{Origin: p.Origin, Dir: r3.Unit(dir)}
}
