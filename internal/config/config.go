package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/object-scanner/pkg/detection"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Detection   DetectionConfig   `yaml:"detection"`
	Selection   SelectionConfig   `yaml:"selection"`
	Frame       FrameConfig       `yaml:"frame"`
	Color       ColorConfig       `yaml:"color"`
	Description DescriptionConfig `yaml:"description"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	MaxUploadMB     int           `yaml:"max_upload_mb"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DetectionConfig holds detector and inference settings
type DetectionConfig struct {
	Detectors   []detection.Spec `yaml:"detectors"`
	Confidence  float64          `yaml:"confidence"`
	IoU         float64          `yaml:"iou"`
	AgnosticNMS bool             `yaml:"agnostic_nms"`
	InputSize   int              `yaml:"input_size"`
}

// SelectionConfig holds best-object selection settings
type SelectionConfig struct {
	ForbiddenLabels []string `yaml:"forbidden_labels"`
	MinAreaFraction float64  `yaml:"min_area_fraction"`
}

// FrameConfig holds frame resizing and output encoding settings
type FrameConfig struct {
	MaxWidth      int    `yaml:"max_width"`
	OutputFormat  string `yaml:"output_format"`
	OutputQuality int    `yaml:"output_quality"`
}

// ColorConfig holds dominant color estimation settings
type ColorConfig struct {
	SampleSize int     `yaml:"sample_size"`
	BlurSigma  float64 `yaml:"blur_sigma"`
	Bucket     int     `yaml:"bucket"`
}

// DescriptionConfig holds the image description provider settings
type DescriptionConfig struct {
	Provider    string        `yaml:"provider"`        // gemini, ollama or llamacpp
	Model       string        `yaml:"model,omitempty"` // empty picks the provider default
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	TopK        int           `yaml:"top_k"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// Default description models per provider
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOllamaModel = "openbmb/minicpm-v4.5"
)

// ModelName returns the configured model, or the default for the provider.
// llama.cpp serves a single model, so its default is empty.
func (d DescriptionConfig) ModelName() string {
	if d.Model != "" {
		return d.Model
	}
	switch d.Provider {
	case "", "gemini":
		return DefaultGeminiModel
	case "ollama":
		return DefaultOllamaModel
	default:
		return ""
	}
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			Workers:         2,
			QueueSize:       16,
			MaxUploadMB:     20,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Detection: DetectionConfig{
			Detectors:   detection.DefaultSpecs(),
			Confidence:  0.50,
			IoU:         0.45,
			AgnosticNMS: true,
			InputSize:   640,
		},
		Selection: SelectionConfig{
			ForbiddenLabels: []string{"person"},
			MinAreaFraction: 0.05,
		},
		Frame: FrameConfig{
			MaxWidth:      1280,
			OutputFormat:  "jpg",
			OutputQuality: 90,
		},
		Color: ColorConfig{
			SampleSize: 64,
			BlurSigma:  1.1,
			Bucket:     50,
		},
		Description: DescriptionConfig{
			Provider:    "gemini",
			Timeout:     60 * time.Second,
			Temperature: 0.4,
			TopP:        0.95,
			TopK:        64,
			MaxTokens:   1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			SampleInterval: 5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("API_KEY"); v != "" {
		c.Description.APIKey = v
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.Description.APIKey = v
	}
	if v := getenv("SCANNER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("SCANNER_MODELS"); v != "" {
		if specs := detection.SpecsFromPaths(strings.Split(v, ",")); len(specs) > 0 {
			c.Detection.Detectors = specs
		}
	}
	if v := getenv("SCANNER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be positive")
	}

	if c.Server.QueueSize < 0 {
		return fmt.Errorf("server.queue_size cannot be negative")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		return fmt.Errorf("detection.confidence must be between 0 and 1")
	}

	if c.Detection.IoU < 0 || c.Detection.IoU > 1 {
		return fmt.Errorf("detection.iou must be between 0 and 1")
	}

	if c.Detection.InputSize < 32 || c.Detection.InputSize%32 != 0 {
		return fmt.Errorf("detection.input_size must be a positive multiple of 32")
	}

	for i, d := range c.Detection.Detectors {
		switch strings.ToLower(d.Backend) {
		case "", detection.BackendONNX:
			if d.Path == "" {
				return fmt.Errorf("detection.detectors[%d].path cannot be empty", i)
			}
		case detection.BackendRemote:
			if d.URL == "" {
				return fmt.Errorf("detection.detectors[%d].url cannot be empty", i)
			}
		default:
			return fmt.Errorf("detection.detectors[%d].backend %q is not supported", i, d.Backend)
		}
	}

	if c.Selection.MinAreaFraction < 0 || c.Selection.MinAreaFraction > 1 {
		return fmt.Errorf("selection.min_area_fraction must be between 0 and 1")
	}

	if c.Frame.MaxWidth < 0 {
		return fmt.Errorf("frame.max_width cannot be negative")
	}

	switch strings.ToLower(c.Frame.OutputFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("frame.output_format must be one of jpg, png, webp")
	}

	if c.Frame.OutputQuality < 1 || c.Frame.OutputQuality > 100 {
		return fmt.Errorf("frame.output_quality must be between 1 and 100")
	}

	if c.Color.Bucket < 1 || c.Color.Bucket > 255 {
		return fmt.Errorf("color.bucket must be between 1 and 255")
	}

	switch c.Description.Provider {
	case "gemini", "ollama", "llamacpp":
	default:
		return fmt.Errorf("description.provider must be one of gemini, ollama, llamacpp")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "object-scanner", "config.yaml")
}
