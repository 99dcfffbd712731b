// Package reconstruction builds the intensity and label volumes from slice
// sources. Construction runs once at startup, strictly sequentially, and its
// output is bit-identical for identical inputs.
package reconstruction

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"dvr/internal/models"
	"dvr/pkg/config"
	"dvr/pkg/ingest"
	"dvr/pkg/volume"
)

// Params holds the volume construction parameters.
type Params struct {
	// Intensity describes the intensity slice sequence. An empty Dir selects
	// the synthetic volume instead.
	Intensity ingest.Source

	// Mask optionally describes label slices parallel to Intensity
	Mask *ingest.Source

	// Range maps raw DICOM samples into 8 bits
	Range ingest.Normalizer

	// Sentinels maps raw mask samples onto label ids
	Sentinels ingest.Sentinels

	// SliceThickness is the number of grid layers per slice
	SliceThickness int

	// Order is the axis permutation applied after depth expansion
	Order volume.Order

	// Synthetic volume parameters, used when Intensity.Dir is empty
	Pattern string
	Size    int
	Seed    int64

	// SaveIntermediaryResults writes every layer of the built volume as PNG
	// into IntermediaryDir
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// ParamsFromConfig translates the volume section of cfg into Params
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	v := cfg.Volume
	p := &Params{
		Range:          ingest.Normalizer{Min: v.InputMin, Max: v.InputMax},
		SliceThickness: v.SliceThickness,
		Order:          volume.Identity,
		Pattern:        v.Synthetic.Pattern,
		Size:           v.Synthetic.Size,
		Seed:           v.Synthetic.Seed,
	}

	if v.Order == config.OrderStackAlong {
		p.Order = volume.StackAlongY
	}

	if len(v.Sentinels) > 0 {
		p.Sentinels = make(ingest.Sentinels, len(v.Sentinels))
		for raw, id := range v.Sentinels {
			p.Sentinels[raw] = uint8(id)
		}
	}

	if v.Source == config.SourceSynthetic {
		return p, nil
	}

	f, err := ingest.ParseFormat(v.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	p.Intensity = ingest.Source{
		Dir:    v.Dir,
		Prefix: v.Prefix,
		Ext:    v.Ext,
		Format: f,
		Count:  v.SliceCount,
	}

	if v.MaskDir != "" {
		mf, err := ingest.ParseFormat(v.MaskSource)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		p.Mask = &ingest.Source{
			Dir:    v.MaskDir,
			Prefix: v.MaskPrefix,
			Ext:    v.Ext,
			Format: mf,
			Count:  v.SliceCount,
		}
	}

	return p, nil
}

// Reconstructor turns slice sources into the immutable grids the renderers
// consume.
//
// The construction process consists of several steps:
// 1. Loading intensity slices (or generating a synthetic volume)
// 2. Loading label slices, when a mask source is configured
// 3. Stacking intensity slices and interpolating filler layers
// 4. Stacking label slices and replicating filler layers
// 5. Reordering axes
// 6. Calculating volume statistics
type Reconstructor struct {
	// params stores the construction configuration
	params *Params

	// ingestor decodes slice files
	ingestor *ingest.Ingestor

	// slices and masks hold the ingested slices until the grids are built
	slices []*models.Slice
	masks  []*models.Slice

	// width and height store the dimensions of the input slices
	width  int
	height int

	// vol and labels are the finished grids; labels may be nil
	vol    *volume.Grid
	labels *volume.Grid

	// stats summarizes the finished intensity grid
	stats volume.Stats
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	return &Reconstructor{
		params:   params,
		ingestor: ingest.NewIngestor(params.Range, params.Sentinels),
	}
}

// Process runs the complete construction pipeline
func (r *Reconstructor) Process() error {
	if r.params.SliceThickness < 1 {
		return fmt.Errorf("%w: slice thickness must be >= 1, got %d", config.ErrConfig, r.params.SliceThickness)
	}

	if r.params.Intensity.Dir == "" {
		log.Info().Str("pattern", r.params.Pattern).Int("size", r.params.Size).Msg("Step 1: Generating synthetic volume...")
		g, err := volume.Synthetic(r.params.Pattern, r.params.Size, r.params.Seed)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		r.vol = g
		r.width, r.height = g.Width(), g.Height()
	} else {
		// Step 1: Load intensity slices
		log.Info().Str("dir", r.params.Intensity.Dir).Msg("Step 1: Loading intensity slices...")
		if err := r.loadSlices(); err != nil {
			return fmt.Errorf("failed to load slices: %w", err)
		}

		// Step 2: Load label slices
		if r.params.Mask != nil {
			log.Info().Str("dir", r.params.Mask.Dir).Msg("Step 2: Loading label slices...")
			if err := r.loadMasks(); err != nil {
				return fmt.Errorf("failed to load label slices: %w", err)
			}
		}

		// Step 3: Stack and interpolate
		log.Info().Int("thickness", r.params.SliceThickness).Msg("Step 3: Stacking slices and interpolating filler layers...")
		vol, err := StackIntensity(r.slices, r.params.SliceThickness)
		if err != nil {
			return fmt.Errorf("failed to stack slices: %w", err)
		}
		r.vol = vol

		// Step 4: Replicate labels
		if r.masks != nil {
			log.Info().Msg("Step 4: Replicating label layers...")
			labels, err := StackLabels(r.masks, r.params.SliceThickness)
			if err != nil {
				return fmt.Errorf("failed to stack label slices: %w", err)
			}
			r.labels = labels
		}

		// Ingestion state is not needed once the grids exist
		r.slices, r.masks = nil, nil
	}

	// Step 5: Reorder axes
	if r.params.Order != volume.Identity && r.params.Order != (volume.Order{}) {
		log.Info().Msg("Step 5: Reordering axes...")
		vol, err := volume.Reorder(r.vol, r.params.Order)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
		r.vol = vol
		if r.labels != nil {
			labels, err := volume.Reorder(r.labels, r.params.Order)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrConfig, err)
			}
			r.labels = labels
		}
	}

	// Step 6: Statistics
	r.stats = volume.ComputeStats(r.vol)
	w, h, d := r.vol.Dims()
	log.Info().
		Int("width", w).Int("height", h).Int("depth", d).
		Bool("labels", r.labels != nil).
		Float64("mean", r.stats.Mean).
		Float64("stddev", r.stats.StdDev).
		Float64("nonzero", r.stats.NonZero).
		Uint8("min", r.stats.Min).
		Uint8("max", r.stats.Max).
		Msg("Step 6: Volume ready")

	if r.params.SaveIntermediaryResults {
		if err := r.saveLayers("volume", r.vol); err != nil {
			log.Warn().Err(err).Msg("failed to save volume layers")
		}
		if r.labels != nil {
			if err := r.saveLayers("labels", r.labels); err != nil {
				log.Warn().Err(err).Msg("failed to save label layers")
			}
		}
	}

	return nil
}

func (r *Reconstructor) loadSlices() error {
	slices, err := r.ingestor.Load(r.params.Intensity, models.Intensity)
	if err != nil {
		return err
	}
	r.slices = slices
	r.width = slices[0].Width
	r.height = slices[0].Height

	log.Info().Msgf("Loaded %d slices with dimensions %dx%d", len(r.slices), r.width, r.height)
	return nil
}

func (r *Reconstructor) loadMasks() error {
	src := *r.params.Mask
	available, err := src.Available()
	if err != nil {
		return err
	}
	if src.Count == 0 || available < src.Count {
		src.Count = available
	}
	if src.Count != len(r.slices) {
		return fmt.Errorf("%w: %d label slices for %d intensity slices",
			config.ErrConfig, src.Count, len(r.slices))
	}

	masks, err := r.ingestor.Load(src, models.Label)
	if err != nil {
		return err
	}
	if err := checkMask(r.slices, masks); err != nil {
		return err
	}
	r.masks = masks
	return nil
}

// saveLayers writes each depth layer of g as an 8-bit PNG
func (r *Reconstructor) saveLayers(stage string, g *volume.Grid) error {
	dir := filepath.Join(r.params.IntermediaryDir, stage)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}

	w, h, d := g.Dims()
	for z := 0; z < d; z++ {
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, g.Layer(z))

		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("layer_%04d.png", z)))
		if err != nil {
			return err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// GetVolume returns the built intensity grid
func (r *Reconstructor) GetVolume() *volume.Grid {
	return r.vol
}

// GetLabels returns the built label grid, or nil without a mask source
func (r *Reconstructor) GetLabels() *volume.Grid {
	return r.labels
}

// HasMask reports whether a label grid was built
func (r *Reconstructor) HasMask() bool {
	return r.labels != nil
}

// GetStats returns the intensity grid statistics
func (r *Reconstructor) GetStats() volume.Stats {
	return r.stats
}
