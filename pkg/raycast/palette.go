package raycast

import "fmt"

// MaxLabels is the number of palette entries
const MaxLabels = 16

// LabelStyle is the tint and opacity weight of one label id
type LabelStyle struct {
	Tint   [3]uint8
	Weight float64
}

// Palette maps label ids onto styles
type Palette [MaxLabels]LabelStyle

// DefaultPalette leaves unlabeled voxels white and tints label 1 red
func DefaultPalette() Palette {
	var p Palette
	for i := range p {
		p[i] = LabelStyle{Tint: [3]uint8{255, 255, 255}, Weight: 1}
	}
	p[1] = LabelStyle{Tint: [3]uint8{255, 64, 64}, Weight: 1}
	return p
}

// Set replaces the style of label id
func (p *Palette) Set(id int, style LabelStyle) error {
	if id < 0 || id >= MaxLabels {
		return fmt.Errorf("label id %d outside [0,%d)", id, MaxLabels)
	}
	if style.Weight < 0 || style.Weight > 1 {
		return fmt.Errorf("label %d weight %g outside [0,1]", id, style.Weight)
	}
	p[id] = style
	return nil
}

// AdjustWeight adds delta to the weight of label id, clamped to [0,1]
func (p *Palette) AdjustWeight(id int, delta float64) {
	if id < 0 || id >= MaxLabels {
		return
	}
	w := p[id].Weight + delta
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	p[id].Weight = w
}

// Lookup returns the style of label id; ids beyond the palette use entry 0
func (p *Palette) Lookup(id uint8) LabelStyle {
	if int(id) >= MaxLabels {
		return p[0]
	}
	return p[id]
}
