package render

import (
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"dvr/pkg/raycast"
	"dvr/pkg/volume"
)

// TestSchedulerClaimsEveryRowOnce drains a scheduler from many goroutines
func TestSchedulerClaimsEveryRowOnce(t *testing.T) {
	const rows = 1037
	const workers = 8

	sched := NewScheduler(rows, workers)
	claims := make([]int, rows)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				start, end, ok := sched.Next()
				if !ok {
					return
				}
				mu.Lock()
				for y := start; y < end; y++ {
					claims[y]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for y, n := range claims {
		require.Equal(t, 1, n, "row %d", y)
	}
}

func TestSchedulerChunksShrink(t *testing.T) {
	sched := NewScheduler(100, 2)

	start, end, ok := sched.Next()
	require.True(t, ok)
	assert.Equal(t, 0, start)
	assert.Equal(t, 25, end)

	start, end, ok = sched.Next()
	require.True(t, ok)
	assert.Equal(t, 25, start)
	assert.Equal(t, 43, end)
}

func TestSchedulerSingleRowChunks(t *testing.T) {
	sched := NewScheduler(3, 4)
	for want := 0; want < 3; want++ {
		start, end, ok := sched.Next()
		require.True(t, ok)
		assert.Equal(t, want, start)
		assert.Equal(t, want+1, end)
	}
	_, _, ok := sched.Next()
	assert.False(t, ok)
}

func newSampler(t *testing.T) *raycast.Sampler {
	t.Helper()
	g, err := volume.Sphere(16)
	require.NoError(t, err)
	s, err := raycast.NewSampler(g, nil, 1)
	require.NoError(t, err)
	return s
}

func testFrame() raycast.Frame {
	return raycast.Frame{
		Camera: raycast.Camera{
			Position: r3.Vec{Z: -30},
			Up:       r3.Vec{Y: 1},
			FovY:     60,
		},
		Width:    24,
		Height:   16,
		Settings: raycast.DefaultSettings(),
	}
}

// TestCPURendererMatchesSampler compares every pixel with a direct sampler call
func TestCPURendererMatchesSampler(t *testing.T) {
	s := newSampler(t)
	f := testFrame()

	r := NewCPURenderer(s, Options{Workers: 3})
	img, err := r.Render(f)
	require.NoError(t, err)

	proj, err := raycast.NewProjector(f.Camera, f.Width, f.Height)
	require.NoError(t, err)

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			require.Equal(t, s.Pixel(proj, x, y, &f.Settings), img.RGBAAt(x, y), "pixel (%d,%d)", x, y)
		}
	}

	// The sphere is visible at the center and the corners stay background
	assert.NotZero(t, img.RGBAAt(12, 8).A)
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 0))
}

func TestCPURendererReusesFrame(t *testing.T) {
	r := NewCPURenderer(newSampler(t), Options{Workers: 2})
	f := testFrame()

	a, err := r.Render(f)
	require.NoError(t, err)
	b, err := r.Render(f)
	require.NoError(t, err)
	assert.Same(t, a, b)

	f.Width = 10
	c, err := r.Render(f)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Rect.Dx())
}

func TestCPURendererFlipY(t *testing.T) {
	s := newSampler(t)
	f := testFrame()

	plain, err := NewCPURenderer(s, Options{Workers: 2}).Render(f)
	require.NoError(t, err)
	flipped, err := NewCPURenderer(s, Options{Workers: 2, FlipY: true}).Render(f)
	require.NoError(t, err)

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			require.Equal(t, plain.RGBAAt(x, y), flipped.RGBAAt(x, f.Height-1-y))
		}
	}
}

func TestCPURendererDegenerateCamera(t *testing.T) {
	r := NewCPURenderer(newSampler(t), Options{})
	f := testFrame()
	f.Camera.Position = f.Camera.Target

	_, err := r.Render(f)
	assert.ErrorIs(t, err, raycast.ErrDegenerateCamera)
	assert.GreaterOrEqual(t, r.Workers(), 1)
}
