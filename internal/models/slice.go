package models

// Kind tells the ingestor how raw samples of a slice are interpreted
type Kind int

const (
	// Intensity slices are normalized into 8-bit brightness values
	Intensity Kind = iota

	// Label slices are mapped through a sentinel table into label ids
	Label
)

func (k Kind) String() string {
	switch k {
	case Intensity:
		return "intensity"
	case Label:
		return "label"
	default:
		return "unknown"
	}
}

// Slice represents a single ingested cross-section with 8-bit samples
type Slice struct {
	// Index is the position of this slice in the ordered sequence
	Index int

	// Source is the file the slice was decoded from
	Source string

	// Kind is the interpretation applied to the raw samples
	Kind Kind

	// Width and Height are the cross-sectional resolution in samples
	Width  int
	Height int

	// Data holds Width*Height samples in row-major order
	Data []uint8
}

// NewSlice allocates a zero-filled slice of the given resolution
func NewSlice(index int, source string, kind Kind, width, height int) *Slice {
	return &Slice{
		Index:  index,
		Source: source,
		Kind:   kind,
		Width:  width,
		Height: height,
		Data:   make([]uint8, width*height),
	}
}

// At returns the sample at (x, y), or 0 outside the slice
func (s *Slice) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0
	}
	return s.Data[y*s.Width+x]
}
