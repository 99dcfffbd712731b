package volume

import (
	"fmt"
	randv2 "math/rand/v2"
)

// Synthetic patterns for running without slice data
const (
	PatternChecker = "checker"
	PatternRandom  = "random"
	PatternSphere  = "sphere"
)

// CheckerValue is the sample stored in the even cells of a checkerboard
const CheckerValue = 2

// Checker fills a size^3 grid with value where x+y+z is even
func Checker(size int, value uint8) (*Grid, error) {
	g, err := NewGrid(size, size, size)
	if err != nil {
		return nil, err
	}
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if (x+y+z)%2 == 0 {
					g.data[(z*size+y)*size+x] = value
				}
			}
		}
	}
	return g, nil
}

// Random fills a size^3 grid with uniform samples in [0,255]. The same seed
// always yields the same grid.
func Random(size int, seed int64) (*Grid, error) {
	g, err := NewGrid(size, size, size)
	if err != nil {
		return nil, err
	}
	rng := randv2.New(randv2.NewPCG(uint64(seed), uint64(seed)))
	for i := range g.data {
		g.data[i] = uint8(rng.IntN(256))
	}
	return g, nil
}

// Sphere fills a size^3 grid with a solid ball centered in the grid whose
// samples fade from 255 at the center to 0 at the surface
func Sphere(size int) (*Grid, error) {
	g, err := NewGrid(size, size, size)
	if err != nil {
		return nil, err
	}
	c := float64(size-1) / 2
	r := float64(size) / 2
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				d2 := dx*dx + dy*dy + dz*dz
				if d2 < r*r {
					g.data[(z*size+y)*size+x] = uint8(255 * (1 - d2/(r*r)))
				}
			}
		}
	}
	return g, nil
}

// Synthetic builds a named pattern
func Synthetic(pattern string, size int, seed int64) (*Grid, error) {
	switch pattern {
	case PatternChecker, "":
		return Checker(size, CheckerValue)
	case PatternRandom:
		return Random(size, seed)
	case PatternSphere:
		return Sphere(size)
	default:
		return nil, fmt.Errorf("unknown synthetic pattern %q", pattern)
	}
}
