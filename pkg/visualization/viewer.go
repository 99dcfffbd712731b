// Package visualization exports 2D views of a built volume: axis-aligned
// slices, subregions and maximum intensity projections.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"dvr/pkg/raycast"
	"dvr/pkg/volume"
)

// Viewer extracts images from an intensity grid and an optional label grid
type Viewer struct {
	// vol holds the intensity samples
	vol *volume.Grid

	// labels holds label ids; nil without a mask
	labels *volume.Grid

	// palette tints labelled samples when labels are present
	palette raycast.Palette

	// dimensions of the volume
	width  int
	height int
	depth  int
}

// NewViewer creates a viewer over vol. labels may be nil.
func NewViewer(vol, labels *volume.Grid, palette raycast.Palette) *Viewer {
	w, h, d := vol.Dims()
	return &Viewer{
		vol:     vol,
		labels:  labels,
		palette: palette,
		width:   w,
		height:  h,
		depth:   d,
	}
}

// axisExtent returns the number of positions along axis
func (v *Viewer) axisExtent(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return v.width, nil
	case "y":
		return v.height, nil
	case "z":
		return v.depth, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// plane returns the image size and the voxel mapping for a plane
// perpendicular to axis
func (v *Viewer) plane(axis string, position int) (w, h int, at func(i, j int) (int, int, int)) {
	switch strings.ToLower(axis) {
	case "x":
		// YZ plane
		return v.depth, v.height, func(i, j int) (int, int, int) { return position, j, i }
	case "y":
		// XZ plane
		return v.width, v.depth, func(i, j int) (int, int, int) { return i, position, j }
	default:
		// XY plane
		return v.width, v.height, func(i, j int) (int, int, int) { return i, j, position }
	}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	extent, err := v.axisExtent(axis)
	if err != nil {
		return nil, err
	}
	if position >= extent {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, axis, extent)
	}

	w, h, at := v.plane(axis, position)
	img := image.NewGray(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			img.SetGray(i, j, color.Gray{Y: v.vol.Get(at(i, j))})
		}
	}
	return img, nil
}

// ExtractOverlay extracts a slice with label tints applied. Without a label
// grid it is the gray slice as RGBA.
func (v *Viewer) ExtractOverlay(axis string, position int) (*image.RGBA, error) {
	gray, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}

	w, h, at := v.plane(axis, position)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			s := gray.GrayAt(i, j).Y
			c := color.RGBA{R: s, G: s, B: s, A: 255}
			if v.labels != nil {
				if id := v.labels.Get(at(i, j)); id != 0 {
					style := v.palette.Lookup(id)
					f := float64(s) * style.Weight
					c.R = uint8(f * float64(style.Tint[0]) / 255)
					c.G = uint8(f * float64(style.Tint[1]) / 255)
					c.B = uint8(f * float64(style.Tint[2]) / 255)
				}
			}
			img.SetRGBA(i, j, c)
		}
	}
	return img, nil
}

// Project computes the maximum intensity projection along axis
func (v *Viewer) Project(axis string) (*image.Gray, error) {
	extent, err := v.axisExtent(axis)
	if err != nil {
		return nil, err
	}

	w, h, _ := v.plane(axis, 0)
	img := image.NewGray(image.Rect(0, 0, w, h))
	for pos := 0; pos < extent; pos++ {
		_, _, at := v.plane(axis, pos)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				if s := v.vol.Get(at(i, j)); s > img.GrayAt(i, j).Y {
					img.SetGray(i, j, color.Gray{Y: s})
				}
			}
		}
	}
	return img, nil
}

// ExtractRegion extracts a 3D subregion from the volume
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*volume.Grid, error) {
	// Validate parameters
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	if startX+sizeX > v.width || startY+sizeY > v.height || startZ+sizeZ > v.depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region, err := volume.NewGrid(sizeX, sizeY, sizeZ)
	if err != nil {
		return nil, err
	}
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region.Set(x, y, z, v.vol.Get(startX+x, startY+y, startZ+z))
			}
		}
	}
	return region, nil
}

// Crop returns a viewer over a subregion of both the intensity and label
// grids
func (v *Viewer) Crop(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*Viewer, error) {
	vol, err := v.ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ)
	if err != nil {
		return nil, err
	}

	var labels *volume.Grid
	if v.labels != nil {
		lv := &Viewer{vol: v.labels, width: v.width, height: v.height, depth: v.depth}
		if labels, err = lv.ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ); err != nil {
			return nil, err
		}
	}
	return NewViewer(vol, labels, v.palette), nil
}

// SaveSlice saves an image as PNG, or JPEG when filename ends in .jpg/.jpeg
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		return png.Encode(file, img)
	}
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, overlay bool) error {
	maxPos, err := v.axisExtent(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		var img image.Image
		if overlay {
			img, err = v.ExtractOverlay(axis, pos)
		} else {
			img, err = v.ExtractSlice(axis, pos)
		}
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
