// Package config handles configuration for visual-diff.
package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/visual-diff/pkg/core"
	"gopkg.in/yaml.v3"
)

// Mode selects what a run does with captured screenshots.
type Mode string

// Run modes
const (
	ModeTest   Mode = "test"   // Compare captures against base images
	ModeRebase Mode = "rebase" // Replace base images with captures
)

// Defaults
const (
	DefaultBaseDir     = "screenshots/base"
	DefaultCurrentDir  = "screenshots/current"
	DefaultDiffDir     = "screenshots/diff"
	DefaultReportTitle = "Screenshots Report"
)

// FileNames are the config file names LoadFromDir looks for, in order.
var FileNames = []string{"visual-diff.yaml", "visual-diff.yml"}

// Config is the run configuration. It is immutable once a run starts.
type Config struct {
	Mode              Mode    `yaml:"mode"`
	BaseDir           string  `yaml:"baseDir"`
	CurrentDir        string  `yaml:"currentDir"`
	DiffDir           string  `yaml:"diffDir"`
	MismatchThreshold float64 `yaml:"mismatchThreshold"` // Percentage, 0..100

	Report ReportConfig `yaml:"report"`
}

// ReportConfig controls which report documents are written at the end of a run.
type ReportConfig struct {
	Title  string `yaml:"title"`
	JSON   *bool  `yaml:"json"`   // Write report.json (default: true)
	Allure bool   `yaml:"allure"` // Write allure-results/
}

// WriteJSON reports whether report.json should be written.
func (r ReportConfig) WriteJSON() bool {
	return r.JSON == nil || *r.JSON
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Mode:       ModeTest,
		BaseDir:    DefaultBaseDir,
		CurrentDir: DefaultCurrentDir,
		DiffDir:    DefaultDiffDir,
		Report: ReportConfig{
			Title: DefaultReportTitle,
		},
	}
}

// WithDefaults fills unset fields from Default.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.BaseDir == "" {
		c.BaseDir = d.BaseDir
	}
	if c.CurrentDir == "" {
		c.CurrentDir = d.CurrentDir
	}
	if c.DiffDir == "" {
		c.DiffDir = d.DiffDir
	}
	if c.Report.Title == "" {
		c.Report.Title = d.Report.Title
	}
	return c
}

// Validate checks every field and returns a core.ErrInvalidConfig that names
// all offending fields, or nil.
func (c Config) Validate() error {
	var problems []string
	fields := map[string]interface{}{}

	if c.Mode != ModeTest && c.Mode != ModeRebase {
		problems = append(problems, "mode must be one of rebase, test (got "+quote(string(c.Mode))+")")
		fields["mode"] = string(c.Mode)
	}
	for _, f := range []struct {
		name, value string
	}{
		{"baseDir", c.BaseDir},
		{"currentDir", c.CurrentDir},
		{"diffDir", c.DiffDir},
	} {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, f.name+" is required")
			fields[f.name] = f.value
		}
	}
	if math.IsNaN(c.MismatchThreshold) || c.MismatchThreshold < 0 || c.MismatchThreshold > 100 {
		problems = append(problems, "mismatchThreshold must be between 0 and 100")
		fields["mismatchThreshold"] = c.MismatchThreshold
	}

	if len(problems) == 0 {
		return nil
	}
	return core.ErrInvalidConfig.
		WithMessage("invalid configuration: " + strings.Join(problems, "; ")).
		WithDetails(fields)
}

// New applies defaults to c and validates the result.
func New(c Config) (Config, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ReportDir is where report documents go: the current directory in test mode,
// the base directory when rebasing.
func (c Config) ReportDir() string {
	if c.Mode == ModeRebase {
		return c.BaseDir
	}
	return c.CurrentDir
}

// Load loads configuration from a file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("parse " + path).WithCause(err)
	}

	cfg, err = New(cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromDir looks for visual-diff.yaml or visual-diff.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range FileNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	cfg := Default()
	return &cfg, nil
}

func quote(s string) string {
	return "\"" + s + "\""
}
