// Package config provides configuration loading and management for dvr.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks configuration failures: invalid parameters that are the
// caller's mistake and cannot be recovered from at runtime.
var ErrConfig = errors.New("invalid configuration")

// Volume source kinds
const (
	SourceDICOM     = "dicom"
	SourceImage     = "image"
	SourceSynthetic = "synthetic"
)

// Render strategies
const (
	StrategyCPU = "cpu"
	StrategyGPU = "gpu"
)

// Composite policies
const (
	CompositeAdditive = "additive"
	CompositeMIP      = "mip"
)

// Axis orders applied after depth expansion
const (
	OrderNone       = "none"
	OrderStackAlong = "stack-y"
)

// MaxLabels is the number of palette entries shared by both render strategies
const MaxLabels = 16

// LabelStyle configures how one label id is tinted and weighted
type LabelStyle struct {
	// ID is the label id (0 = unlabeled)
	ID int `yaml:"id"`

	// Name is a human readable class name, e.g. "bone"
	Name string `yaml:"name"`

	// Color is the RGB tint applied to voxels carrying this label
	Color [3]uint8 `yaml:"color"`

	// Weight scales the contribution of this label, in [0, 1]
	Weight float64 `yaml:"weight"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Volume construction parameters, supplied once at startup
	Volume struct {
		// Source selects dicom, image or synthetic input
		Source string `yaml:"source"`

		// Dir is the directory containing intensity slices
		Dir string `yaml:"dir"`

		// Prefix, when set, names slices as <Prefix><index><Ext>
		Prefix string `yaml:"prefix"`

		// Ext is appended to prefixed slice names (may be empty)
		Ext string `yaml:"ext"`

		// SliceCount limits the number of slices read (0 = all found)
		SliceCount int `yaml:"sliceCount"`

		// SliceThickness is the number of grid layers each slice expands to
		SliceThickness int `yaml:"sliceThickness"`

		// InputMin and InputMax are the sensor's fixed dynamic range
		InputMin float64 `yaml:"inputMin"`
		InputMax float64 `yaml:"inputMax"`

		// MaskDir holds label slices parallel to the intensity slices
		MaskDir string `yaml:"maskDir"`

		// MaskPrefix names label slices like Prefix does for intensity slices
		MaskPrefix string `yaml:"maskPrefix"`

		// MaskSource selects dicom or image decoding for label slices
		MaskSource string `yaml:"maskSource"`

		// Sentinels maps raw label sample values to label ids
		Sentinels map[int]int `yaml:"sentinels"`

		// Order is the axis reorder applied after depth expansion
		Order string `yaml:"order"`

		// CellSize is the world size of one voxel
		CellSize float64 `yaml:"cellSize"`

		// Synthetic volume parameters
		Synthetic struct {
			Pattern string `yaml:"pattern"`
			Size    int    `yaml:"size"`
			Seed    int64  `yaml:"seed"`
		} `yaml:"synthetic"`
	} `yaml:"volume"`

	// Render parameters
	Render struct {
		// Strategy selects the cpu or gpu execution strategy
		Strategy string `yaml:"strategy"`

		// Width and Height are the viewport in pixels
		Width  int `yaml:"width"`
		Height int `yaml:"height"`

		// StepSize is the ray marching step in world units
		StepSize float64 `yaml:"stepSize"`

		// Composite selects additive or mip
		Composite string `yaml:"composite"`

		// Workers is the number of CPU render goroutines
		Workers int `yaml:"workers"`

		// FlipY writes CPU frames bottom row first
		FlipY bool `yaml:"flipY"`

		// WorkgroupSize is the compute kernel tile edge
		WorkgroupSize int `yaml:"workgroupSize"`
	} `yaml:"render"`

	// Camera defaults; the UI mutates a copy every frame
	Camera struct {
		Position    [3]float64 `yaml:"position"`
		Target      [3]float64 `yaml:"target"`
		Up          [3]float64 `yaml:"up"`
		FovY        float64    `yaml:"fovY"`
		OrbitRadius float64    `yaml:"orbitRadius"`
		OrbitAngle  float64    `yaml:"orbitAngle"`
	} `yaml:"camera"`

	// Display parameters
	Display struct {
		Brightness  float64 `yaml:"brightness"`
		MaskEnabled bool    `yaml:"maskEnabled"`
		Title       string  `yaml:"title"`
	} `yaml:"display"`

	// Labels is the palette; ids not listed keep the default style
	Labels []LabelStyle `yaml:"labels"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Volume.Source = SourceSynthetic
	cfg.Volume.Prefix = ""
	cfg.Volume.SliceThickness = 4
	cfg.Volume.InputMin = -128
	cfg.Volume.InputMax = 1023
	cfg.Volume.MaskSource = SourceImage
	cfg.Volume.Sentinels = map[int]int{255: 1}
	cfg.Volume.Order = OrderNone
	cfg.Volume.CellSize = 1.0
	cfg.Volume.Synthetic.Pattern = "checker"
	cfg.Volume.Synthetic.Size = 32
	cfg.Volume.Synthetic.Seed = 1

	cfg.Render.Strategy = StrategyCPU
	cfg.Render.Width = 1366
	cfg.Render.Height = 768
	cfg.Render.StepSize = 0.1
	cfg.Render.Composite = CompositeAdditive
	cfg.Render.Workers = runtime.NumCPU()
	cfg.Render.FlipY = false
	cfg.Render.WorkgroupSize = 8

	cfg.Camera.Position = [3]float64{0, 0, -30}
	cfg.Camera.Target = [3]float64{0, 0, 0}
	cfg.Camera.Up = [3]float64{0, 1, 0}
	cfg.Camera.FovY = 120
	cfg.Camera.OrbitRadius = 30
	cfg.Camera.OrbitAngle = 270

	cfg.Display.Brightness = 1.0
	cfg.Display.MaskEnabled = false
	cfg.Display.Title = "Direct Volume Rendering"

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate reports the first configuration failure found, wrapped in ErrConfig
func (c *Config) Validate() error {
	switch c.Volume.Source {
	case SourceDICOM, SourceImage:
		if c.Volume.Dir == "" {
			return fmt.Errorf("%w: volume.dir is required for %s source", ErrConfig, c.Volume.Source)
		}
	case SourceSynthetic:
		if c.Volume.Synthetic.Size < 1 {
			return fmt.Errorf("%w: synthetic size must be >= 1, got %d", ErrConfig, c.Volume.Synthetic.Size)
		}
	default:
		return fmt.Errorf("%w: unknown volume source %q", ErrConfig, c.Volume.Source)
	}

	if c.Volume.MaskDir != "" && c.Volume.MaskSource != SourceDICOM && c.Volume.MaskSource != SourceImage {
		return fmt.Errorf("%w: unknown mask source %q", ErrConfig, c.Volume.MaskSource)
	}

	if c.Volume.SliceThickness < 1 {
		return fmt.Errorf("%w: slice thickness must be >= 1, got %d", ErrConfig, c.Volume.SliceThickness)
	}
	if c.Volume.InputMax <= c.Volume.InputMin {
		return fmt.Errorf("%w: input range [%g, %g] is empty", ErrConfig, c.Volume.InputMin, c.Volume.InputMax)
	}
	if c.Volume.CellSize <= 0 {
		return fmt.Errorf("%w: cell size must be positive, got %g", ErrConfig, c.Volume.CellSize)
	}
	if c.Volume.Order != OrderNone && c.Volume.Order != OrderStackAlong && c.Volume.Order != "" {
		return fmt.Errorf("%w: unknown axis order %q", ErrConfig, c.Volume.Order)
	}
	for raw, id := range c.Volume.Sentinels {
		if id < 0 || id >= MaxLabels {
			return fmt.Errorf("%w: sentinel %d maps to label %d outside [0,%d)", ErrConfig, raw, id, MaxLabels)
		}
	}

	switch c.Render.Strategy {
	case StrategyCPU, StrategyGPU:
	default:
		return fmt.Errorf("%w: unknown render strategy %q", ErrConfig, c.Render.Strategy)
	}
	switch c.Render.Composite {
	case CompositeAdditive, CompositeMIP:
	default:
		return fmt.Errorf("%w: unknown composite %q", ErrConfig, c.Render.Composite)
	}
	if c.Render.Width < 1 || c.Render.Height < 1 {
		return fmt.Errorf("%w: viewport %dx%d", ErrConfig, c.Render.Width, c.Render.Height)
	}
	if c.Render.StepSize <= 0 {
		return fmt.Errorf("%w: step size must be positive, got %g", ErrConfig, c.Render.StepSize)
	}
	if c.Render.WorkgroupSize < 1 {
		return fmt.Errorf("%w: workgroup size must be >= 1, got %d", ErrConfig, c.Render.WorkgroupSize)
	}

	if c.Camera.FovY <= 0 || c.Camera.FovY >= 180 {
		return fmt.Errorf("%w: fovY must be in (0, 180), got %g", ErrConfig, c.Camera.FovY)
	}

	for _, l := range c.Labels {
		if l.ID < 0 || l.ID >= MaxLabels {
			return fmt.Errorf("%w: label id %d outside [0,%d)", ErrConfig, l.ID, MaxLabels)
		}
		if l.Weight < 0 || l.Weight > 1 {
			return fmt.Errorf("%w: label %d weight %g outside [0,1]", ErrConfig, l.ID, l.Weight)
		}
	}

	return nil
}
