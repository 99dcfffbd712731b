package ingest

// Default sensor range of the reference CT series. Samples below the minimum
// carry no signal.
const (
	DefaultInputMin = -128
	DefaultInputMax = 1023
)

// Normalizer compresses raw samples from a fixed input range into 8 bits
type Normalizer struct {
	Min float64
	Max float64
}

// DefaultNormalizer returns the reference CT range
func DefaultNormalizer() Normalizer {
	return Normalizer{Min: DefaultInputMin, Max: DefaultInputMax}
}

// Value maps one raw sample. Samples below Min stay 0 and samples above Max
// saturate at 255.
func (n Normalizer) Value(in int) uint8 {
	v := float64(in)
	if v < n.Min || n.Max <= n.Min {
		return 0
	}
	out := (v - n.Min) * 255 / (n.Max - n.Min)
	if out > 255 {
		return 255
	}
	return uint8(out)
}

// Apply normalizes src into dst; dst must be at least as long as src
func (n Normalizer) Apply(src []int, dst []uint8) {
	for i, v := range src {
		dst[i] = n.Value(v)
	}
}

// Sentinels maps raw label sample values onto label ids. Values without an
// entry map to 0 (unlabeled).
type Sentinels map[int]uint8

// DefaultSentinels returns the reference mask encoding: 255 marks label 1
func DefaultSentinels() Sentinels {
	return Sentinels{255: 1}
}

// Label returns the id for one raw sample
func (s Sentinels) Label(raw int) uint8 {
	return s[raw]
}

// Apply maps src into dst; dst must be at least as long as src
func (s Sentinels) Apply(src []int, dst []uint8) {
	for i, v := range src {
		dst[i] = s[v]
	}
}
