package raycast

import (
	"fmt"
	"image/color"

	"dvr/pkg/volume"
)

// Composite selects how samples along a ray are combined
type Composite int

const (
	// Additive sums gray samples per channel, saturating at 255
	Additive Composite = iota

	// MaxIntensity keeps the brightest weighted sample
	MaxIntensity
)

func (c Composite) String() string {
	switch c {
	case Additive:
		return "additive"
	case MaxIntensity:
		return "mip"
	default:
		return fmt.Sprintf("composite(%d)", int(c))
	}
}

// ParseComposite maps a config name onto a Composite
func ParseComposite(name string) (Composite, error) {
	switch name {
	case "additive", "":
		return Additive, nil
	case "mip", "max":
		return MaxIntensity, nil
	default:
		return 0, fmt.Errorf("unknown composite %q", name)
	}
}

// DefaultStep is the ray marching step in world units
const DefaultStep = 0.1

// Settings are the per-frame sampling parameters
type Settings struct {
	Step        float64
	Composite   Composite
	MaskEnabled bool
	Palette     Palette
}

// DefaultSettings returns additive compositing at the default step
func DefaultSettings() Settings {
	return Settings{
		Step:      DefaultStep,
		Composite: Additive,
		Palette:   DefaultPalette(),
	}
}

// Frame is everything a strategy needs to render one image
type Frame struct {
	Camera   Camera
	Width    int
	Height   int
	Settings Settings
}

// Sampler walks rays through an intensity grid and an optional label grid
type Sampler struct {
	vol      *volume.Grid
	labels   *volume.Grid
	cellSize float64
	box      Box
}

// NewSampler places vol in a box centered at the origin. labels may be nil;
// when present it must match the dims of vol.
func NewSampler(vol, labels *volume.Grid, cellSize float64) (*Sampler, error) {
	if vol == nil {
		return nil, fmt.Errorf("sampler needs a volume")
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %g", cellSize)
	}
	if labels != nil && !vol.SameDims(labels) {
		return nil, fmt.Errorf("label volume dims do not match intensity volume")
	}
	w, h, d := vol.Dims()
	return &Sampler{
		vol:      vol,
		labels:   labels,
		cellSize: cellSize,
		box:      CenteredBox(w, h, d, cellSize),
	}, nil
}

// Box returns the world bounds of the volume
func (s *Sampler) Box() Box { return s.box }

// CellSize returns the world size of one voxel
func (s *Sampler) CellSize() float64 { return s.cellSize }

// Volume returns the intensity grid
func (s *Sampler) Volume() *volume.Grid { return s.vol }

// Labels returns the label grid, or nil
func (s *Sampler) Labels() *volume.Grid { return s.labels }

// HasMask reports whether a label grid is attached
func (s *Sampler) HasMask() bool { return s.labels != nil }

// contribution returns the tinted color and weighted intensity of one voxel
func (s *Sampler) contribution(x, y, z int, v uint8, st *Settings) (r, g, b, a uint8) {
	if !st.MaskEnabled || s.labels == nil {
		return v, v, v, v
	}
	style := st.Palette.Lookup(s.labels.Get(x, y, z))
	if style.Weight <= 0 {
		return 0, 0, 0, 0
	}
	f := float64(v) * style.Weight
	r = uint8(f * float64(style.Tint[0]) / 255)
	g = uint8(f * float64(style.Tint[1]) / 255)
	b = uint8(f * float64(style.Tint[2]) / 255)
	a = uint8(f)
	return r, g, b, a
}

// Sample marches r through the volume and composites the samples. Rays that
// miss the volume return transparent black.
func (s *Sampler) Sample(r Ray, st *Settings) color.RGBA {
	tEnter, tExit, ok := s.box.Intersect(r)
	if !ok {
		return color.RGBA{}
	}
	if tEnter < 0 {
		tEnter = 0
	}

	step := st.Step
	if step <= 0 {
		step = DefaultStep
	}

	var acc [4]int
	var best float64 = -1
	var out color.RGBA

	for i := 0; ; i++ {
		t := tEnter + float64(i)*step
		if t > tExit {
			break
		}
		p := r.At(t)
		x := int((p.X - s.box.Min.X) / s.cellSize)
		y := int((p.Y - s.box.Min.Y) / s.cellSize)
		z := int((p.Z - s.box.Min.Z) / s.cellSize)
		if !s.vol.Contains(x, y, z) {
			continue
		}
		v := s.vol.Get(x, y, z)
		if v == 0 {
			continue
		}

		cr, cg, cb, ca := s.contribution(x, y, z, v, st)

		switch st.Composite {
		case MaxIntensity:
			if w := float64(ca); w > best {
				best = w
				out = color.RGBA{R: cr, G: cg, B: cb, A: ca}
			}
		default:
			acc[0] = min(255, acc[0]+int(cr))
			acc[1] = min(255, acc[1]+int(cg))
			acc[2] = min(255, acc[2]+int(cb))
			acc[3] = min(255, acc[3]+int(ca))
			if acc[0] == 255 && acc[1] == 255 && acc[2] == 255 && acc[3] == 255 {
				return color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
		}
	}

	if st.Composite == MaxIntensity {
		return out
	}
	return color.RGBA{R: uint8(acc[0]), G: uint8(acc[1]), B: uint8(acc[2]), A: uint8(acc[3])}
}

// Pixel renders pixel (x, y) of the projector's viewport
func (s *Sampler) Pixel(p *Projector, x, y int, st *Settings) color.RGBA {
	return s.Sample(p.Ray(x, y), st)
}
