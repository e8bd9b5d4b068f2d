package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the dashboard configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Data     DataConfig     `yaml:"data" json:"data"`
	Slider   SliderConfig   `yaml:"slider" json:"slider"`
	Playback PlaybackConfig `yaml:"playback" json:"playback"`
	Layout   LayoutConfig   `yaml:"layout" json:"layout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// RateLimit is requests per second per client on control endpoints.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
}

// DataConfig locates the two input documents. Either may be a path or an http(s) URL.
type DataConfig struct {
	Geometry     string        `yaml:"geometry" json:"geometry"`
	Statistics   string        `yaml:"statistics" json:"statistics"`
	GeometryName string        `yaml:"geometry_name" json:"geometry_name"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// SliderConfig bounds the year slider. Zero bounds are taken from the data.
type SliderConfig struct {
	MinYear     int     `yaml:"min_year" json:"min_year"`
	MaxYear     int     `yaml:"max_year" json:"max_year"`
	InitialYear int     `yaml:"initial_year" json:"initial_year"`
	ThumbSize   float64 `yaml:"thumb_size" json:"thumb_size"`
}

type PlaybackConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

type LayoutConfig struct {
	Mounts map[string]string `yaml:"mounts" json:"mounts"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", RateLimit: 20},
		Data: DataConfig{
			Geometry:     "data/TWbord_town.geojson",
			Statistics:   "data/LEsmoothed.json",
			GeometryName: "TWbord_town",
			FetchTimeout: 30 * time.Second,
		},
		Slider:   SliderConfig{ThumbSize: 20},
		Playback: PlaybackConfig{Interval: time.Second},
	}
}

// LoadEnvFiles loads .env style files into the environment. Missing files
// are skipped; variables already set win.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig reads filename over the defaults, then applies LIFEDASH_*
// environment overrides. An empty filename uses defaults only.
func LoadConfig(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"LIFEDASH_ADDR":       &c.Server.Addr,
		"LIFEDASH_GEOMETRY":   &c.Data.Geometry,
		"LIFEDASH_STATISTICS": &c.Data.Statistics,
	}
	for k, dst := range str {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LIFEDASH_MIN_YEAR":     &c.Slider.MinYear,
		"LIFEDASH_MAX_YEAR":     &c.Slider.MaxYear,
		"LIFEDASH_INITIAL_YEAR": &c.Slider.InitialYear,
	}
	for k, dst := range ints {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", k, err)
		}
		*dst = n
	}

	if v := os.Getenv("LIFEDASH_PLAY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LIFEDASH_PLAY_INTERVAL: %w", err)
		}
		c.Playback.Interval = d
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.Data.Geometry == "" || c.Data.Statistics == "" {
		return errors.New("both data.geometry and data.statistics are required")
	}
	if c.Data.GeometryName == "" {
		return errors.New("data.geometry_name is required")
	}
	if c.Playback.Interval <= 0 {
		return fmt.Errorf("playback interval must be positive, got %v", c.Playback.Interval)
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server rate_limit must not be negative")
	}
	s := c.Slider
	if s.MinYear != 0 && s.MaxYear != 0 && s.MinYear > s.MaxYear {
		return fmt.Errorf("slider min_year %d is after max_year %d", s.MinYear, s.MaxYear)
	}
	if s.ThumbSize < 0 {
		return errors.New("slider thumb_size must not be negative")
	}
	return nil
}

// Resolve fills unset slider bounds from the data's year range. The initial
// year defaults to the first year and is clamped into range.
func (s SliderConfig) Resolve(dataMin, dataMax int) (min, max, initial int) {
	min, max, initial = s.MinYear, s.MaxYear, s.InitialYear
	if min == 0 {
		min = dataMin
	}
	if max == 0 {
		max = dataMax
	}
	if initial == 0 || initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return min, max, initial
}
