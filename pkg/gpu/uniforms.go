package gpu

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"

	"dvr/pkg/raycast"
	"dvr/pkg/volume"
)

// KernelParams is the per-dispatch uniform block. The float32 fields are
// what the compute kernel receives; Projector and Settings keep the exact
// values for host-side devices.
type KernelParams struct {
	Resolution [2]int32

	Origin     mgl32.Vec3
	Forward    mgl32.Vec3
	Up         mgl32.Vec3
	Horizontal mgl32.Vec3
	Focal      float32
	Aspect     float32

	BoxMin   mgl32.Vec3
	BoxMax   mgl32.Vec3
	CellSize float32
	Dims     [3]int32

	Step        float32
	Composite   int32
	MaskEnabled int32

	// Palette holds tint/255 in xyz and the weight in w
	Palette [raycast.MaxLabels]mgl32.Vec4

	Projector *raycast.Projector
	Settings  raycast.Settings
}

func vec3(v r3.Vec) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// NewKernelParams packs the frame basis, settings and volume geometry
func NewKernelParams(proj *raycast.Projector, st raycast.Settings, box raycast.Box, cellSize float64, vol *volume.Grid, hasMask bool) *KernelParams {
	w, h, d := vol.Dims()
	step := st.Step
	if step <= 0 {
		step = raycast.DefaultStep
	}

	p := &KernelParams{
		Resolution: [2]int32{int32(proj.Width), int32(proj.Height)},
		Origin:     vec3(proj.Origin),
		Forward:    vec3(proj.Forward),
		Up:         vec3(proj.Up),
		Horizontal: vec3(proj.Horizontal),
		Focal:      float32(proj.D),
		Aspect:     float32(proj.Aspect),
		BoxMin:     vec3(box.Min),
		BoxMax:     vec3(box.Max),
		CellSize:   float32(cellSize),
		Dims:       [3]int32{int32(w), int32(h), int32(d)},
		Step:       float32(step),
		Composite:  int32(st.Composite),
		Projector:  proj,
		Settings:   st,
	}
	if st.MaskEnabled && hasMask {
		p.MaskEnabled = 1
	}
	for i, style := range st.Palette {
		p.Palette[i] = mgl32.Vec4{
			float32(style.Tint[0]) / 255,
			float32(style.Tint[1]) / 255,
			float32(style.Tint[2]) / 255,
			float32(style.Weight),
		}
	}
	return p
}

// Groups returns the dispatch grid covering width x height with square
// workgroups of the given edge
func Groups(width, height, size int) (x, y uint32) {
	return uint32((width + size - 1) / size), uint32((height + size - 1) / size)
}

// PackRGBA packs a color with R in the low byte, matching packUnorm4x8
func PackRGBA(c color.RGBA) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// UnpackRGBA is the inverse of PackRGBA
func UnpackRGBA(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: uint8(v >> 24)}
}

// PackVolume packs four samples per word, lowest address in the low byte.
// The tail is zero padded.
func PackVolume(g *volume.Grid) []uint32 {
	data := g.Data()
	out := make([]uint32, (len(data)+3)/4)
	for i, v := range data {
		out[i>>2] |= uint32(v) << (uint(i&3) * 8)
	}
	return out
}
