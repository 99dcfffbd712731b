// Package ingest reads ordered cross-section slices from disk and converts
// them into 8-bit intensity or label samples.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"dvr/internal/models"
)

// ErrIngestion marks a missing, unreadable or malformed slice source.
// Ingestion never yields a partial volume.
var ErrIngestion = errors.New("slice ingestion failed")

// Format identifies how slice files are decoded
type Format string

const (
	FormatDICOM Format = "dicom"
	FormatPNG   Format = "png"
	FormatJPEG  Format = "jpeg"
	FormatTIFF  Format = "tiff"

	// FormatImage accepts any registered raster format
	FormatImage Format = "image"
)

// extensions lists the file suffixes accepted when a directory is listed
var extensions = map[Format][]string{
	FormatDICOM: {".dcm", ".dicom", ""},
	FormatPNG:   {".png"},
	FormatJPEG:  {".jpg", ".jpeg"},
	FormatTIFF:  {".tif", ".tiff"},
	FormatImage: {".png", ".jpg", ".jpeg", ".tif", ".tiff"},
}

// ParseFormat maps a config name to a Format
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(name))
	if f == "jpg" {
		f = FormatJPEG
	}
	if f == "tif" {
		f = FormatTIFF
	}
	if _, ok := extensions[f]; !ok {
		return "", fmt.Errorf("%w: unknown slice format %q", ErrIngestion, name)
	}
	return f, nil
}

// Source describes an ordered sequence of slice files
type Source struct {
	// Dir is the directory holding the slices
	Dir string

	// Prefix names slices by index as <Prefix><i><Ext>, e.g. "image_"
	Prefix string

	// Ext is the suffix appended to prefixed names
	Ext string

	// Format selects the decoder
	Format Format

	// Count is the number of slices to read; 0 reads everything found
	Count int
}

// Paths resolves the ordered list of slice files for the source
func (s Source) Paths() ([]string, error) {
	if s.Prefix != "" {
		if s.Count <= 0 {
			return nil, fmt.Errorf("%w: prefixed source %q needs a slice count", ErrIngestion, s.Prefix)
		}
		paths := make([]string, s.Count)
		for i := range paths {
			paths[i] = filepath.Join(s.Dir, s.Prefix+strconv.Itoa(i)+s.Ext)
		}
		return paths, nil
	}

	names, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no %s slices found in %s", ErrIngestion, s.Format, s.Dir)
	}

	if s.Count > 0 {
		if s.Count > len(names) {
			return nil, fmt.Errorf("%w: wanted %d slices, found %d in %s", ErrIngestion, s.Count, len(names), s.Dir)
		}
		names = names[:s.Count]
	}

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.Dir, name)
	}
	return paths, nil
}

// list returns the directory entries matching the source format, ordered by
// the number embedded in each file name
func (s Source) list() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIngestion, s.Dir, err)
	}

	accepted := extensions[s.Format]
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, a := range accepted {
			if ext == a {
				names = append(names, entry.Name())
				break
			}
		}
	}

	// Slice order follows the number embedded in each file name
	sort.SliceStable(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})
	return names, nil
}

// Available returns how many slices the source holds, ignoring Count. For a
// prefixed source it counts consecutive indices starting at 0.
func (s Source) Available() (int, error) {
	if s.Prefix == "" {
		names, err := s.list()
		if err != nil {
			return 0, err
		}
		return len(names), nil
	}

	if _, err := os.Stat(s.Dir); err != nil {
		return 0, fmt.Errorf("%w: reading %s: %v", ErrIngestion, s.Dir, err)
	}
	n := 0
	for {
		_, err := os.Stat(filepath.Join(s.Dir, s.Prefix+strconv.Itoa(n)+s.Ext))
		if errors.Is(err, fs.ErrNotExist) {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrIngestion, err)
		}
		n++
	}
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// Ingestor converts slice files into 8-bit samples
type Ingestor struct {
	// Range maps raw DICOM samples onto [0,255]
	Range Normalizer

	// Sentinels maps raw label samples onto label ids
	Sentinels Sentinels
}

// NewIngestor creates an ingestor with the given intensity range and label table
func NewIngestor(r Normalizer, sentinels Sentinels) *Ingestor {
	if sentinels == nil {
		sentinels = DefaultSentinels()
	}
	return &Ingestor{Range: r, Sentinels: sentinels}
}

// Load decodes every slice of the source. The first slice fixes the
// cross-sectional resolution; any later slice with different dimensions
// fails the whole load.
func (in *Ingestor) Load(src Source, kind models.Kind) ([]*models.Slice, error) {
	paths, err := src.Paths()
	if err != nil {
		return nil, err
	}

	slices := make([]*models.Slice, 0, len(paths))
	for i, path := range paths {
		raw, err := decode(path, src.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: slice %d (%s): %v", ErrIngestion, i, path, err)
		}

		if len(slices) > 0 {
			first := slices[0]
			if raw.width != first.Width || raw.height != first.Height {
				return nil, fmt.Errorf("%w: slice %d (%s) is %dx%d, expected %dx%d",
					ErrIngestion, i, path, raw.width, raw.height, first.Width, first.Height)
			}
		}

		slice := models.NewSlice(i, path, kind, raw.width, raw.height)
		switch kind {
		case models.Label:
			in.Sentinels.Apply(raw.samples, slice.Data)
		default:
			in.rangeFor(raw).Apply(raw.samples, slice.Data)
		}
		slices = append(slices, slice)

		log.Debug().
			Int("index", i).
			Str("path", path).
			Stringer("kind", kind).
			Int("width", raw.width).
			Int("height", raw.height).
			Msg("slice ingested")
	}

	return slices, nil
}

// rangeFor picks the normalization range for a decoded slice. DICOM samples
// use the configured sensor range; raster images use their own bit depth.
func (in *Ingestor) rangeFor(raw *rawSlice) Normalizer {
	if raw.dicom {
		return in.Range
	}
	if raw.bits > 8 {
		return Normalizer{Min: 0, Max: 65535}
	}
	return Normalizer{Min: 0, Max: 255}
}
