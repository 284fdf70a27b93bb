package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/pdf2lecture/internal/transition"
)

const EnvPrefix = "PDF2LECTURE_"

type Config struct {
	Input       string  `yaml:"input"`
	DocumentID  string  `yaml:"document_id"`
	OutputVideo string  `yaml:"output"`
	AudioPath   string  `yaml:"audio"`
	Duration    float64 `yaml:"duration"`

	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	DPI          int    `yaml:"dpi"`
	Workers      int    `yaml:"workers"`
	Preset       string `yaml:"preset"`
	VideoEncoder string `yaml:"encoder"`
	Quality      int    `yaml:"quality"`

	TransitionType     string        `yaml:"transition"`
	TransitionDuration time.Duration `yaml:"transition_duration"`

	Classifier    string        `yaml:"classifier"`
	ServiceURL    string        `yaml:"service_url"`
	ServiceKey    string        `yaml:"service_key"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	StoreDir      string        `yaml:"store_dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	AutoPlay      bool          `yaml:"autoplay"`
	ShowStats     bool          `yaml:"stats"`
	BuildVersion  string        `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Width:              1280,
		Height:             720,
		FPS:                30,
		DPI:                150,
		Workers:            runtime.NumCPU(),
		Preset:             "medium",
		Quality:            23,
		TransitionType:     "fade",
		TransitionDuration: 800 * time.Millisecond,
		Classifier:         "contrast",
		CallTimeout:        15 * time.Second,
		RatePerSecond:      5,
		StoreDir:           ".pdf2lecture",
		AutoPlay:           true,
	}
}

// Load starts from the defaults, applies the YAML file at path (if path is
// not empty) and then the PDF2LECTURE_* environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("CLASSIFIER", &c.Classifier)
	str("SERVICE_URL", &c.ServiceURL)
	str("SERVICE_KEY", &c.ServiceKey)
	dur("CALL_TIMEOUT", &c.CallTimeout)
	str("STORE_DIR", &c.StoreDir)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	num("REDIS_DB", &c.RedisDB)
	dur("REDIS_TTL", &c.RedisTTL)
	num("WORKERS", &c.Workers)
	str("ENCODER", &c.VideoEncoder)
	return errors.Join(errs...)
}

// Validate normalizes sizes and rejects settings nothing can run with.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	// yuv420p требует чётных размеров
	c.Width -= c.Width % 2
	c.Height -= c.Height % 2
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.DPI <= 0 {
		c.DPI = 150
	}
	if c.TransitionDuration <= 0 {
		c.TransitionDuration = 800 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.Duration < 0 {
		return fmt.Errorf("negative duration %.2f", c.Duration)
	}
	kind, err := transition.ParseKind(c.TransitionType)
	if err != nil {
		return err
	}
	c.TransitionType = string(kind)
	switch c.Classifier {
	case "", "contrast", "remote":
	default:
		return fmt.Errorf("unknown classifier %q", c.Classifier)
	}
	if c.Classifier == "remote" && c.ServiceURL == "" {
		return errors.New("remote classifier needs service_url")
	}
	return nil
}

// RemoteServices reports whether classifier and synthesizer calls go over
// HTTP.
func (c *Config) RemoteServices() bool {
	return c.ServiceURL != ""
}
