package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration of ditherworks
type Config struct {
	DataDir       string        `validate:"required"`
	OutputDir     string        `validate:"required"`
	WorkerMode    string        `validate:"oneof=pool inline"`
	WorkerCount   int           `validate:"min=1,max=64"`
	QueueSize     int           `validate:"min=1"`
	MaxDimension  int           `validate:"min=0"`
	AuxTimeout    time.Duration `validate:"min=0"`
	RecordHistory bool

	// ArtifactMaxAge prunes output and history older than this at startup; zero keeps everything
	ArtifactMaxAge time.Duration `validate:"min=0"`
	Pipeline      Pipeline
}

// Pipeline selects and parameterizes the dithering stages
type Pipeline struct {
	Stages      []string  `yaml:"stages"`
	Levels      int       `yaml:"levels" validate:"min=2,max=255"`
	ColorLevels int       `yaml:"color_levels" validate:"min=2,max=255"`
	BayerLevels int       `yaml:"bayer_levels" validate:"min=1,max=8"`
	BlurSigma   float64   `yaml:"blur_sigma" validate:"gt=0"`
	Seed        uint64    `yaml:"seed"`
	BlueNoise   BlueNoise `yaml:"blue_noise"`
	Riemersma   Riemersma `yaml:"riemersma"`
}

// BlueNoise configures the blue-noise mask generator
type BlueNoise struct {
	Size     int           `yaml:"size" validate:"min=4,max=1024"`
	Budget   time.Duration `yaml:"budget" validate:"gt=0"`
	SigmaI   float64       `yaml:"sigma_i" validate:"gt=0"`
	SigmaS   float64       `yaml:"sigma_s" validate:"gt=0"`
	Snapshot bool          `yaml:"snapshot"`
}

// Riemersma configures the Hilbert-curve error diffusion. ColorRatio
// applies to the color stage, which decays faster.
type Riemersma struct {
	Queue      int     `yaml:"queue" validate:"min=2,max=1024"`
	Ratio      float64 `yaml:"ratio" validate:"gt=0,lte=1"`
	ColorRatio float64 `yaml:"color_ratio" validate:"gt=0,lte=1"`
}

// DefaultPipeline returns the pipeline parameters used when no file is given
func DefaultPipeline() Pipeline {
	return Pipeline{
		Levels:      2,
		ColorLevels: 4,
		BayerLevels: 4,
		BlurSigma:   2,
		BlueNoise: BlueNoise{
			Size:   64,
			Budget: 10 * time.Second,
			SigmaI: 2.1,
			SigmaS: 1.0,
		},
		Riemersma: Riemersma{
			Queue:      32,
			Ratio:      1.0 / 8,
			ColorRatio: 1.0 / 16,
		},
	}
}

// Load reads the configuration from the environment and the optional
// PIPELINE_FILE, then validates it.
func Load() (*Config, error) {
	dataDir := Get("DATA_DIR", "./data")
	cfg := &Config{
		DataDir:        dataDir,
		OutputDir:      Get("OUTPUT_DIR", dataDir+"/output"),
		WorkerMode:     strings.ToLower(Get("WORKER_MODE", "pool")),
		WorkerCount:    GetInt("WORKER_COUNT", 2),
		QueueSize:      GetInt("QUEUE_SIZE", 16),
		MaxDimension:   GetInt("MAX_DIMENSION", 1024),
		AuxTimeout:     GetDuration("AUX_TIMEOUT", 0),
		RecordHistory:  GetBool("RECORD_HISTORY", true),
		ArtifactMaxAge: GetDuration("ARTIFACT_MAX_AGE", 0),
		Pipeline:       DefaultPipeline(),
	}

	cfg.Pipeline.Levels = GetInt("DITHER_LEVELS", cfg.Pipeline.Levels)
	cfg.Pipeline.BlueNoise.Size = GetInt("BLUENOISE_SIZE", cfg.Pipeline.BlueNoise.Size)
	cfg.Pipeline.BlueNoise.Budget = GetDuration("BLUENOISE_BUDGET", cfg.Pipeline.BlueNoise.Budget)
	cfg.Pipeline.BlueNoise.Snapshot = GetBool("BLUENOISE_SNAPSHOT", cfg.Pipeline.BlueNoise.Snapshot)
	cfg.Pipeline.BlurSigma = GetFloat("BLUR_SIGMA", cfg.Pipeline.BlurSigma)
	cfg.Pipeline.Seed = uint64(GetInt("DITHER_SEED", 0))
	if stages := Get("PIPELINE_STAGES", ""); stages != "" {
		cfg.Pipeline.Stages = splitList(stages)
	}

	if path := Get("PIPELINE_FILE", ""); path != "" {
		if err := LoadPipelineFile(path, &cfg.Pipeline); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPipelineFile overlays the YAML file at path onto p
func LoadPipelineFile(path string, p *Pipeline) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pipeline file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to parse pipeline file %s: %w", path, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of cfg
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
