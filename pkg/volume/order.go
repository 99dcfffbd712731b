package volume

import "fmt"

// Axis names one grid dimension
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Order is an axis permutation. Order[i] is the source axis that becomes
// destination axis i.
type Order [3]Axis

var (
	// Identity keeps the storage order
	Identity = Order{AxisX, AxisY, AxisZ}

	// StackAlongY lays the slice stack along world y: storage (z, y, x)
	// becomes (y, depth, x)
	StackAlongY = Order{AxisX, AxisZ, AxisY}
)

// Valid reports whether the order is a permutation of x, y, z
func (o Order) Valid() bool {
	var seen [3]bool
	for _, a := range o {
		if a < AxisX || a > AxisZ || seen[a] {
			return false
		}
		seen[a] = true
	}
	return true
}

// Reorder transposes g into a new grid with the axes permuted by o. The
// source grid is left untouched.
func Reorder(g *Grid, o Order) (*Grid, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid axis order %v", o)
	}

	src := [3]int{g.width, g.height, g.depth}
	out, err := NewGrid(src[o[0]], src[o[1]], src[o[2]])
	if err != nil {
		return nil, err
	}

	var p [3]int
	for z := 0; z < out.depth; z++ {
		for y := 0; y < out.height; y++ {
			for x := 0; x < out.width; x++ {
				p[o[0]], p[o[1]], p[o[2]] = x, y, z
				out.data[(z*out.height+y)*out.width+x] = g.data[(p[2]*g.height+p[1])*g.width+p[0]]
			}
		}
	}

	return out, nil
}
