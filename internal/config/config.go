package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type AppConfig struct {
	Port             int
	Endpoint         string
	Workers          int
	Debug            bool
	DebugRate        float64
	DebugWidth       int
	DebugHeight      int
	Batch            int
	Alpha            float64
	FPS              int
	Autoplay         bool
	ToggleLabel      string
	Colormap         string
	Format           string
	RawLogEnabled    bool
	RawLogDir        string
	IngestLogEvery   int
	IngestFallback   bool
	Release          bool
	FrontendURL      string
	FrontendBuildDir string
	FrontendPoll     time.Duration
}

func Default() AppConfig {
	return AppConfig{
		Port:           8501,
		Endpoint:       "tcp://localhost:31001",
		Workers:        2,
		DebugRate:      10,
		DebugWidth:     160,
		DebugHeight:    120,
		Batch:          30,
		Alpha:          0.5,
		FPS:            30,
		ToggleLabel:    "Display Heatmap",
		Colormap:       "jet",
		Format:         "jpeg",
		RawLogDir:      "rawlog",
		IngestLogEvery: 100,
		IngestFallback: true,
		Release:        true,
		FrontendURL:    "http://localhost:3001",
		FrontendPoll:   2 * time.Second,
	}
}

// FileConfig is the JSON config file schema. Omitted fields keep the
// value already present in AppConfig.
type FileConfig struct {
	Port             *int     `json:"port,omitempty"`
	Endpoint         *string  `json:"endpoint,omitempty"`
	Workers          *int     `json:"workers,omitempty"`
	Batch            *int     `json:"batch,omitempty"`
	Alpha            *float64 `json:"alpha,omitempty"`
	FPS              *int     `json:"fps,omitempty"`
	Autoplay         *bool    `json:"autoplay,omitempty"`
	ToggleLabel      *string  `json:"toggle_label,omitempty"`
	Colormap         *string  `json:"colormap,omitempty"`
	Format           *string  `json:"format,omitempty"`
	RawLogDir        *string  `json:"raw_log_dir,omitempty"`
	Release          *bool    `json:"release,omitempty"`
	FrontendURL      *string  `json:"frontend_url,omitempty"`
	FrontendBuildDir *string  `json:"frontend_build_dir,omitempty"`
	FrontendPoll     *string  `json:"frontend_poll,omitempty"` // duration string like "2s"
}

const maxFileSize = 1 * 1024 * 1024

// LoadFile reads a JSON config file. The path must end in .json and the
// file must be under 1MB.
func LoadFile(path string) (*FileConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &fc, nil
}

// Apply copies every set field of fc into cfg.
func (fc *FileConfig) Apply(cfg *AppConfig) error {
	setInt(&cfg.Port, fc.Port)
	setString(&cfg.Endpoint, fc.Endpoint)
	setInt(&cfg.Workers, fc.Workers)
	setInt(&cfg.Batch, fc.Batch)
	if fc.Alpha != nil {
		cfg.Alpha = *fc.Alpha
	}
	setInt(&cfg.FPS, fc.FPS)
	if fc.Autoplay != nil {
		cfg.Autoplay = *fc.Autoplay
	}
	setString(&cfg.ToggleLabel, fc.ToggleLabel)
	setString(&cfg.Colormap, fc.Colormap)
	setString(&cfg.Format, fc.Format)
	setString(&cfg.RawLogDir, fc.RawLogDir)
	if fc.Release != nil {
		cfg.Release = *fc.Release
	}
	setString(&cfg.FrontendURL, fc.FrontendURL)
	setString(&cfg.FrontendBuildDir, fc.FrontendBuildDir)
	if fc.FrontendPoll != nil {
		d, err := time.ParseDuration(*fc.FrontendPoll)
		if err != nil {
			return fmt.Errorf("invalid frontend_poll %q: %w", *fc.FrontendPoll, err)
		}
		cfg.FrontendPoll = d
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ApplyUpdate applies a runtime config message. Recognized keys are alpha,
// fps, autoplay, toggle_label, colormap and format; others are ignored.
func (c *AppConfig) ApplyUpdate(values map[string]any) error {
	next := *c
	for key, raw := range values {
		var err error
		switch key {
		case "alpha":
			next.Alpha, err = toFloat(raw)
		case "fps":
			var f float64
			f, err = toFloat(raw)
			next.FPS = int(f)
		case "autoplay":
			b, ok := raw.(bool)
			if !ok {
				err = fmt.Errorf("want bool, got %T", raw)
			}
			next.Autoplay = b
		case "toggle_label":
			next.ToggleLabel, err = toString(raw)
		case "colormap":
			next.Colormap, err = toString(raw)
		case "format":
			next.Format, err = toString(raw)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
	}
	*c = next
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("want string, got %T", v)
	}
	return s, nil
}
