package gpu

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"dvr/pkg/raycast"
	"dvr/pkg/render"
	"dvr/pkg/volume"
)

// countingDevice records which buffers each dispatch touched
type countingDevice struct {
	*SoftwareDevice
	uploads int
	allocs  int
	frees   int
	writes  []Handle
}

func newCountingDevice() *countingDevice {
	return &countingDevice{SoftwareDevice: NewSoftwareDevice(1)}
}

func (d *countingDevice) UploadVolume(vol, labels *volume.Grid) error {
	d.uploads++
	return d.SoftwareDevice.UploadVolume(vol, labels)
}

func (d *countingDevice) AllocResult(width, height int) (Handle, error) {
	d.allocs++
	return d.SoftwareDevice.AllocResult(width, height)
}

func (d *countingDevice) FreeResult(h Handle) {
	d.frees++
	d.SoftwareDevice.FreeResult(h)
}

func (d *countingDevice) Dispatch(in, out Handle, p *KernelParams) error {
	d.writes = append(d.writes, out)
	return d.SoftwareDevice.Dispatch(in, out, p)
}

func testFrame(width, height int) raycast.Frame {
	return raycast.Frame{
		Camera: raycast.Camera{
			Position: r3.Vec{X: 3, Y: 2, Z: -30},
			Up:       r3.Vec{Y: 1},
			FovY:     60,
		},
		Width:    width,
		Height:   height,
		Settings: raycast.DefaultSettings(),
	}
}

func TestPingPongGenerations(t *testing.T) {
	p := NewPingPong(Handle(1), Handle(2))
	assert.Equal(t, Handle(1), p.Read())
	assert.Equal(t, Handle(2), p.Write())

	for n := 1; n <= 5; n++ {
		written := p.Write()
		p.Swap()
		require.Equal(t, written, p.Read(), "dispatch %d", n)
		require.Equal(t, uint64(n), p.Generation())
		require.NotEqual(t, p.Read(), p.Write())
	}
}

// TestRendererReadIsLatestDispatch checks the ping-pong invariant through the renderer
func TestRendererReadIsLatestDispatch(t *testing.T) {
	g, err := volume.Sphere(12)
	require.NoError(t, err)

	dev := newCountingDevice()
	r, err := NewRenderer(dev, g, nil, 1)
	require.NoError(t, err)
	defer r.Release()

	f := testFrame(16, 12)
	for n := 1; n <= 4; n++ {
		h, err := r.Render(f)
		require.NoError(t, err)
		require.Equal(t, dev.writes[len(dev.writes)-1], h)
		require.Equal(t, h, r.Read())
		require.Equal(t, uint64(n), r.Generation())
	}

	// Consecutive frames alternate between the two buffers
	assert.NotEqual(t, dev.writes[0], dev.writes[1])
	assert.Equal(t, dev.writes[0], dev.writes[2])
}

func TestRendererViewportChangeKeepsVolume(t *testing.T) {
	g, err := volume.Checker(6, volume.CheckerValue)
	require.NoError(t, err)

	dev := newCountingDevice()
	r, err := NewRenderer(dev, g, nil, 1)
	require.NoError(t, err)

	_, err = r.Render(testFrame(8, 8))
	require.NoError(t, err)
	_, err = r.Render(testFrame(8, 8))
	require.NoError(t, err)
	assert.Equal(t, 2, dev.allocs)

	_, err = r.Render(testFrame(10, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, dev.uploads)
	assert.Equal(t, 4, dev.allocs)
	assert.Equal(t, 2, dev.frees)
	assert.Equal(t, 2, dev.Live())
	assert.Equal(t, uint64(1), r.Generation())

	r.Release()
	assert.Equal(t, 0, dev.Live())
}

func TestRendererDegenerateCamera(t *testing.T) {
	dev := newCountingDevice()
	r, err := NewRenderer(dev, volume.MustGrid(2, 2, 2), nil, 1)
	require.NoError(t, err)

	f := testFrame(4, 4)
	f.Camera.Target = f.Camera.Position
	_, err = r.Render(f)
	assert.ErrorIs(t, err, raycast.ErrDegenerateCamera)
	assert.Empty(t, dev.writes)
}

// TestStrategiesAgree renders the same frame with both strategies
func TestStrategiesAgree(t *testing.T) {
	g, err := volume.Random(10, 3)
	require.NoError(t, err)
	labels := volume.MustGrid(10, 10, 10)
	for z := 0; z < 10; z++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 5; x++ {
				labels.Set(x, y, z, 1)
			}
		}
	}

	for _, composite := range []raycast.Composite{raycast.Additive, raycast.MaxIntensity} {
		t.Run(composite.String(), func(t *testing.T) {
			f := testFrame(20, 14)
			f.Settings.Composite = composite
			f.Settings.MaskEnabled = true
			f.Settings.Palette.AdjustWeight(1, -0.5)

			sampler, err := raycast.NewSampler(g, labels, 1)
			require.NoError(t, err)
			cpu, err := render.NewCPURenderer(sampler, render.Options{Workers: 4}).Render(f)
			require.NoError(t, err)

			dev := NewSoftwareDevice(1)
			r, err := NewRenderer(dev, g, labels, 1)
			require.NoError(t, err)
			h, err := r.Render(f)
			require.NoError(t, err)

			out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
			require.NoError(t, dev.ReadResult(h, out))
			assert.Equal(t, cpu.Pix, out.Pix)
		})
	}
}

func TestKernelParams(t *testing.T) {
	g := volume.MustGrid(4, 6, 8)
	f := testFrame(32, 16)
	f.Settings.MaskEnabled = true

	proj, err := raycast.NewProjector(f.Camera, f.Width, f.Height)
	require.NoError(t, err)

	p := NewKernelParams(proj, f.Settings, raycast.CenteredBox(4, 6, 8, 2), 2, g, false)
	assert.Equal(t, [2]int32{32, 16}, p.Resolution)
	assert.Equal(t, [3]int32{4, 6, 8}, p.Dims)
	assert.Equal(t, int32(0), p.MaskEnabled, "mask without labels is a no-op")
	assert.InDelta(t, -4, p.BoxMin[0], 1e-6)
	assert.InDelta(t, 8, p.BoxMax[2], 1e-6)
	assert.InDelta(t, 1, p.Palette[0][3], 1e-6)
	assert.InDelta(t, 0.1, p.Step, 1e-6)

	p = NewKernelParams(proj, f.Settings, raycast.CenteredBox(4, 6, 8, 2), 2, g, true)
	assert.Equal(t, int32(1), p.MaskEnabled)
}

func TestGroups(t *testing.T) {
	x, y := Groups(1366, 768, 8)
	assert.Equal(t, uint32(171), x)
	assert.Equal(t, uint32(96), y)

	x, y = Groups(1, 1, 8)
	assert.Equal(t, uint32(1), x)
	assert.Equal(t, uint32(1), y)
}

func TestPacking(t *testing.T) {
	c := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	assert.Equal(t, uint32(0x04030201), PackRGBA(c))
	assert.Equal(t, c, UnpackRGBA(PackRGBA(c)))

	g := volume.MustGrid(5, 1, 1)
	copy(g.Data(), []uint8{1, 2, 3, 4, 5})
	assert.Equal(t, []uint32{0x04030201, 0x05}, PackVolume(g))
}

func TestKernelSource(t *testing.T) {
	src := KernelSource(16)
	assert.True(t, strings.HasPrefix(src, "#version 430 core\n#define WORKGROUP_SIZE 16\n"))
	assert.Contains(t, src, "local_size_x = WORKGROUP_SIZE")
	assert.Contains(t, KernelSource(0), "#define WORKGROUP_SIZE 8\n")
}

func TestSoftwareDeviceErrors(t *testing.T) {
	dev := NewSoftwareDevice(1)
	a, err := dev.AllocResult(2, 2)
	require.NoError(t, err)
	b, err := dev.AllocResult(2, 2)
	require.NoError(t, err)

	proj, err := raycast.NewProjector(testFrame(2, 2).Camera, 2, 2)
	require.NoError(t, err)
	p := NewKernelParams(proj, raycast.DefaultSettings(), raycast.CenteredBox(1, 1, 1, 1), 1, volume.MustGrid(1, 1, 1), false)

	assert.Error(t, dev.Dispatch(a, b, p), "no volume yet")
	require.NoError(t, dev.UploadVolume(volume.MustGrid(1, 1, 1), nil))
	assert.Error(t, dev.Dispatch(a, a, p))
	assert.Error(t, dev.Dispatch(a, Handle(99), p))
	assert.NoError(t, dev.Dispatch(a, b, p))

	_, err = dev.AllocResult(0, 1)
	assert.Error(t, err)
}
