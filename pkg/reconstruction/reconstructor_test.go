package reconstruction

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvr/internal/models"
	"dvr/pkg/config"
	"dvr/pkg/ingest"
	"dvr/pkg/volume"
)

// createTestSlice creates an intensity slice filled by pattern
func createTestSlice(index, width, height int, pattern func(x, y int) uint8) *models.Slice {
	s := models.NewSlice(index, fmt.Sprintf("slice_%d", index), models.Intensity, width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			s.Data[y*width+x] = pattern(x, y)
		}
	}
	return s
}

func constant(v uint8) func(x, y int) uint8 {
	return func(x, y int) uint8 { return v }
}

// writeTestImage writes an 8-bit gray PNG with the specified pattern
func writeTestImage(t *testing.T, path string, width, height int, pattern func(x, y int) uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray{Y: pattern(x, y)})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// TestStackIntensityInterpolation checks the filler layer formula between two slices
func TestStackIntensityInterpolation(t *testing.T) {
	slices := []*models.Slice{
		createTestSlice(0, 2, 2, constant(10)),
		createTestSlice(1, 2, 2, constant(50)),
	}

	g, err := StackIntensity(slices, 4)
	require.NoError(t, err)

	_, _, depth := g.Dims()
	assert.Equal(t, 8, depth)

	expected := []uint8{10, 20, 30, 40, 50, 0, 0, 0}
	for z, want := range expected {
		assert.Equal(t, want, g.Get(1, 1, z), "layer %d", z)
	}
}

// TestStackIntensityBounds verifies every filler sample lies between its neighbors
func TestStackIntensityBounds(t *testing.T) {
	prev := createTestSlice(0, 8, 8, func(x, y int) uint8 { return uint8(x * 31) })
	next := createTestSlice(1, 8, 8, func(x, y int) uint8 { return uint8(255 - y*29) })

	const thickness = 5
	g, err := StackIntensity([]*models.Slice{prev, next}, thickness)
	require.NoError(t, err)

	for l := 1; l < thickness; l++ {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				a, b := prev.At(x, y), next.At(x, y)
				lo, hi := min(a, b), max(a, b)
				v := g.Get(x, y, l)
				require.GreaterOrEqual(t, v, lo)
				require.LessOrEqual(t, v, hi)
			}
		}
	}
}

func TestStackThicknessOne(t *testing.T) {
	slices := []*models.Slice{
		createTestSlice(0, 1, 1, constant(3)),
		createTestSlice(1, 1, 1, constant(4)),
		createTestSlice(2, 1, 1, constant(5)),
	}
	g, err := StackIntensity(slices, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 4, 5}, g.Data())
}

func TestStackRejectsInvalidInput(t *testing.T) {
	_, err := StackIntensity([]*models.Slice{createTestSlice(0, 1, 1, constant(1))}, 0)
	assert.ErrorIs(t, err, config.ErrConfig)

	_, err = StackIntensity(nil, 2)
	assert.ErrorIs(t, err, config.ErrConfig)

	_, err = StackLabels([]*models.Slice{
		createTestSlice(0, 2, 2, constant(1)),
		createTestSlice(1, 2, 3, constant(1)),
	}, 2)
	assert.ErrorIs(t, err, config.ErrConfig)
}

// TestStackLabelsReplicates verifies filler label layers copy the preceding real slice
func TestStackLabelsReplicates(t *testing.T) {
	slices := []*models.Slice{
		createTestSlice(0, 2, 1, func(x, y int) uint8 { return uint8(x) }),
		createTestSlice(1, 2, 1, constant(2)),
	}

	g, err := StackLabels(slices, 3)
	require.NoError(t, err)

	for l := 0; l < 3; l++ {
		assert.Equal(t, uint8(0), g.Get(0, 0, l))
		assert.Equal(t, uint8(1), g.Get(1, 0, l))
	}
	assert.Equal(t, uint8(2), g.Get(0, 0, 3))
	assert.Equal(t, uint8(0), g.Get(0, 0, 4))
	assert.Equal(t, uint8(0), g.Get(0, 0, 5))
}

func TestCheckMask(t *testing.T) {
	intensity := []*models.Slice{createTestSlice(0, 2, 2, constant(1))}

	assert.NoError(t, checkMask(intensity, []*models.Slice{createTestSlice(0, 2, 2, constant(0))}))
	assert.ErrorIs(t, checkMask(intensity, nil), config.ErrConfig)
	assert.ErrorIs(t, checkMask(intensity, []*models.Slice{createTestSlice(0, 3, 2, constant(0))}), config.ErrConfig)
}

// TestNewReconstructor checks that a reconstructor is created with the given parameters
func TestNewReconstructor(t *testing.T) {
	params := &Params{SliceThickness: 4, Range: ingest.DefaultNormalizer()}
	r := NewReconstructor(params)

	require.NotNil(t, r)
	assert.Equal(t, params, r.params)
	assert.Nil(t, r.GetVolume())
	assert.False(t, r.HasMask())
}

func TestProcessSynthetic(t *testing.T) {
	r := NewReconstructor(&Params{
		SliceThickness: 1,
		Pattern:        volume.PatternChecker,
		Size:           4,
		Order:          volume.Identity,
	})
	require.NoError(t, r.Process())

	w, h, d := r.GetVolume().Dims()
	assert.Equal(t, [3]int{4, 4, 4}, [3]int{w, h, d})
	assert.InDelta(t, 0.5, r.GetStats().NonZero, 1e-9)
	assert.False(t, r.HasMask())
}

func TestProcessRejectsZeroThickness(t *testing.T) {
	r := NewReconstructor(&Params{Pattern: volume.PatternChecker, Size: 4})
	assert.ErrorIs(t, r.Process(), config.ErrConfig)
}

// TestProcessFromImages runs the full pipeline over PNG slices and a mask
func TestProcessFromImages(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tmpDir := t.TempDir()
	inputDir := filepath.Join(tmpDir, "input")
	maskDir := filepath.Join(tmpDir, "mask")
	require.NoError(t, os.MkdirAll(inputDir, 0755))
	require.NoError(t, os.MkdirAll(maskDir, 0755))

	for i := 0; i < 3; i++ {
		value := uint8(40 * (i + 1))
		writeTestImage(t, filepath.Join(inputDir, fmt.Sprintf("image_%d.png", i)), 6, 4, constant(value))
		writeTestImage(t, filepath.Join(maskDir, fmt.Sprintf("mask_%d.png", i)), 6, 4, func(x, y int) uint8 {
			if x < 3 {
				return 255
			}
			return 0
		})
	}

	params := &Params{
		Intensity:               ingest.Source{Dir: inputDir, Format: ingest.FormatPNG},
		Mask:                    &ingest.Source{Dir: maskDir, Format: ingest.FormatPNG},
		Range:                   ingest.DefaultNormalizer(),
		SliceThickness:          2,
		Order:                   volume.StackAlongY,
		SaveIntermediaryResults: true,
		IntermediaryDir:         filepath.Join(tmpDir, "layers"),
	}

	build := func() *Reconstructor {
		r := NewReconstructor(params)
		require.NoError(t, r.Process())
		return r
	}

	r := build()
	vol, labels := r.GetVolume(), r.GetLabels()
	require.NotNil(t, labels)
	assert.True(t, vol.SameDims(labels))

	// Stacked 6x4x6 becomes 6x6x4 along y
	w, h, d := vol.Dims()
	assert.Equal(t, [3]int{6, 6, 4}, [3]int{w, h, d})

	// Depth layer 1 (filler between 40 and 80) now lives on row 1
	assert.Equal(t, uint8(40), vol.Get(0, 0, 0))
	assert.Equal(t, uint8(60), vol.Get(0, 1, 0))
	assert.Equal(t, uint8(80), vol.Get(0, 2, 0))
	assert.Equal(t, uint8(0), vol.Get(0, 5, 0))

	assert.Equal(t, uint8(1), labels.Get(0, 1, 2))
	assert.Equal(t, uint8(0), labels.Get(4, 1, 2))

	// Identical inputs build identical grids
	again := build()
	assert.True(t, vol.Equal(again.GetVolume()))
	assert.True(t, labels.Equal(again.GetLabels()))

	_, err := os.Stat(filepath.Join(tmpDir, "layers", "volume", "layer_0000.png"))
	assert.NoError(t, err)
}

// TestProcessMaskCountMismatch checks that intensity and label sources with
// different slice counts are rejected, whichever side has more
func TestProcessMaskCountMismatch(t *testing.T) {
	tests := []struct {
		name   string
		masks  int
		prefix string
		count  int
	}{
		{name: "fewer masks", masks: 1},
		{name: "extra masks", masks: 5},
		{name: "extra prefixed masks", masks: 4, prefix: "mask_"},
		{name: "fewer prefixed masks", masks: 1, prefix: "mask_"},
		{name: "fewer masks than the slice limit", masks: 1, count: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputDir := filepath.Join(tmpDir, "input")
			maskDir := filepath.Join(tmpDir, "mask")
			require.NoError(t, os.MkdirAll(inputDir, 0755))
			require.NoError(t, os.MkdirAll(maskDir, 0755))

			for i := 0; i < 2; i++ {
				writeTestImage(t, filepath.Join(inputDir, fmt.Sprintf("image_%d.png", i)), 2, 2, constant(10))
			}
			for i := 0; i < tt.masks; i++ {
				writeTestImage(t, filepath.Join(maskDir, fmt.Sprintf("mask_%d.png", i)), 2, 2, constant(255))
			}

			mask := &ingest.Source{Dir: maskDir, Format: ingest.FormatPNG, Count: tt.count}
			if tt.prefix != "" {
				mask.Prefix = tt.prefix
				mask.Ext = ".png"
			}

			r := NewReconstructor(&Params{
				Intensity:      ingest.Source{Dir: inputDir, Format: ingest.FormatPNG, Count: tt.count},
				Mask:           mask,
				Range:          ingest.DefaultNormalizer(),
				SliceThickness: 2,
			})
			err := r.Process()
			assert.ErrorIs(t, err, config.ErrConfig)
			assert.False(t, r.HasMask())
		})
	}
}

// TestProcessPrefixedMask loads a mask named by index without a slice count
func TestProcessPrefixedMask(t *testing.T) {
	tmpDir := t.TempDir()
	inputDir := filepath.Join(tmpDir, "input")
	maskDir := filepath.Join(tmpDir, "mask")
	require.NoError(t, os.MkdirAll(inputDir, 0755))
	require.NoError(t, os.MkdirAll(maskDir, 0755))

	for i := 0; i < 3; i++ {
		writeTestImage(t, filepath.Join(inputDir, fmt.Sprintf("image_%d.png", i)), 2, 2, constant(10))
		writeTestImage(t, filepath.Join(maskDir, fmt.Sprintf("mask_%d.png", i)), 2, 2, constant(255))
	}

	r := NewReconstructor(&Params{
		Intensity:      ingest.Source{Dir: inputDir, Format: ingest.FormatPNG},
		Mask:           &ingest.Source{Dir: maskDir, Prefix: "mask_", Ext: ".png", Format: ingest.FormatPNG},
		Range:          ingest.DefaultNormalizer(),
		SliceThickness: 1,
	})
	require.NoError(t, r.Process())
	require.True(t, r.HasMask())
	assert.Equal(t, uint8(1), r.GetLabels().Get(1, 1, 2))
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Volume.Source = config.SourceDICOM
	cfg.Volume.Dir = "/data/ct"
	cfg.Volume.Prefix = "image_"
	cfg.Volume.SliceCount = 124
	cfg.Volume.Order = config.OrderStackAlong
	cfg.Volume.MaskDir = "/data/mask"
	cfg.Volume.Sentinels = map[int]int{255: 1, 128: 2}

	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.FormatDICOM, p.Intensity.Format)
	assert.Equal(t, 124, p.Intensity.Count)
	assert.Equal(t, volume.StackAlongY, p.Order)
	require.NotNil(t, p.Mask)
	assert.Equal(t, ingest.FormatImage, p.Mask.Format)
	assert.Equal(t, uint8(2), p.Sentinels[128])
	assert.Equal(t, float64(-128), p.Range.Min)

	synthetic, err := ParamsFromConfig(config.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, synthetic.Intensity.Dir)
	assert.Equal(t, volume.PatternChecker, synthetic.Pattern)
}
