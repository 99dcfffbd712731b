package ingest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	_ "golang.org/x/image/tiff"
)

// rawSlice holds undecoded samples of one slice in row-major order
type rawSlice struct {
	width   int
	height  int
	bits    int
	dicom   bool
	samples []int
}

func decode(path string, format Format) (*rawSlice, error) {
	if format == FormatDICOM {
		return decodeDICOM(path)
	}
	return decodeImage(path)
}

// decodeDICOM extracts the first frame of native pixel data. Only pixel
// extraction is performed; other attributes are ignored.
func decodeDICOM(path string) (*rawSlice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing dicom: %w", err)
	}

	signed := false
	if el, err := ds.FindElementByTag(tag.PixelRepresentation); err == nil {
		v, ok := el.Value.GetValue().([]int)
		if !ok {
			return nil, fmt.Errorf("pixel representation holds %v, want integers", el.Value.ValueType())
		}
		if len(v) > 0 {
			signed = v[0] == 1
		}
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data: %w", err)
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, fmt.Errorf("pixel data holds %v, want frames", el.Value.ValueType())
	}
	if len(info.Frames) == 0 {
		return nil, errors.New("pixel data holds no frames")
	}
	fr := info.Frames[0]
	if fr.Encapsulated {
		return nil, errors.New("encapsulated pixel data is not supported")
	}

	nf := fr.NativeData
	rows, cols := nf.Rows(), nf.Cols()
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cols, rows)
	}

	raw := &rawSlice{
		width:   cols,
		height:  rows,
		bits:    nf.BitsPerSample(),
		dicom:   true,
		samples: make([]int, rows*cols),
	}

	switch data := nf.RawDataSlice().(type) {
	case []uint16:
		for i := 0; i < len(raw.samples) && i < len(data); i++ {
			if signed {
				raw.samples[i] = int(int16(data[i]))
			} else {
				raw.samples[i] = int(data[i])
			}
		}
	case []int16:
		for i := 0; i < len(raw.samples) && i < len(data); i++ {
			raw.samples[i] = int(data[i])
		}
	case []uint8:
		for i := 0; i < len(raw.samples) && i < len(data); i++ {
			if signed {
				raw.samples[i] = int(int8(data[i]))
			} else {
				raw.samples[i] = int(data[i])
			}
		}
	case []int:
		copy(raw.samples, data)
	default:
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				px, err := nf.GetPixel(x, y)
				if err != nil {
					return nil, fmt.Errorf("reading pixel (%d,%d): %w", x, y, err)
				}
				if len(px) > 0 {
					raw.samples[y*cols+x] = px[0]
				}
			}
		}
	}

	return raw, nil
}

// decodeImage reads a raster slice as luminance. 16-bit gray images keep
// their full precision.
func decodeImage(path string) (*rawSlice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	raw := &rawSlice{
		width:   width,
		height:  height,
		bits:    8,
		samples: make([]int, width*height),
	}

	switch src := img.(type) {
	case *image.Gray16:
		raw.bits = 16
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				raw.samples[y*width+x] = int(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				raw.samples[y*width+x] = int(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				raw.samples[y*width+x] = int(g.Y)
			}
		}
	}

	return raw, nil
}
