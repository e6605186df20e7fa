// Package config loads and persists the bingwall TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	// ServiceBing and ServicePeapix are the supported download services.
	ServiceBing   = "bing"
	ServicePeapix = "peapix"

	defaultConfigPath = "~/.config/bingwall/config.toml"
	defaultStateFile  = "~/.bingwall_state.json"
	defaultImageDir   = "Pictures/BingWallpapers"

	// JpgQualityMin and JpgQualityMax bound every quality knob.
	JpgQualityMin = 70
	JpgQualityMax = 100

	defaultBingRegion   = "en-US"
	defaultPeapixRegion = "us"
)

// Config is the full configuration surface. Field names mirror the TOML keys.
type Config struct {
	ImgAutoFetch         bool   `toml:"img_auto_fetch"`
	TimeToFetch          string `toml:"time_to_fetch"`
	ImageDir             string `toml:"image_dir"`
	StoreJpgQuality      int    `toml:"store_jpg_quality"`
	NumberOfImagesToKeep int    `toml:"number_of_images_to_keep"`
	SetDesktopImage      bool   `toml:"set_desktop_image"`
	RetainImages         bool   `toml:"retain_images"`
	DLService            string `toml:"dl_service"`
	Region               string `toml:"region"`
	StateFile            string `toml:"state_file"`

	DesktopImg DesktopImg `toml:"desktop_img"`
	FTV        FTV        `toml:"ftv"`
	Retry      Retry      `toml:"retry"`
	Constant   Constant   `toml:"constant"`

	// FetchClock is TimeToFetch parsed during Load.
	FetchClock Clock `toml:"-"`
}

// DesktopImg controls the desktop wallpaper variant.
type DesktopImg struct {
	Enabled    bool `toml:"enabled"`
	Width      int  `toml:"width"`
	Height     int  `toml:"height"`
	JpgQuality int  `toml:"jpg_quality"`
}

// FTV controls Frame TV delivery.
type FTV struct {
	Enabled    bool   `toml:"enabled"`
	USBMode    bool   `toml:"usb_mode"`
	JpgQuality int    `toml:"jpg_quality"`
	FTVData    string `toml:"ftv_data"`
}

// Retry governs the bounded daily retry cycle.
type Retry struct {
	Enabled                     bool   `toml:"enabled"`
	MaxAttemptsPerDay           int    `toml:"max_attempts_per_day"`
	DailyResetTime              string `toml:"daily_reset_time"`
	RequireAllOperationsSuccess bool   `toml:"require_all_operations_success"`

	// ResetClock is DailyResetTime parsed during Load.
	ResetClock Clock `toml:"-"`
}

// Constant holds feed endpoints and the per-service region lists.
type Constant struct {
	BingURL         string   `toml:"bing_url"`
	PeapixURL       string   `toml:"peapix_url"`
	AltDLService    string   `toml:"alt_dl_service"`
	AltPeapixRegion []string `toml:"alt_peapix_region"`
	AltBingRegion   []string `toml:"alt_bing_region"`
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	return &Config{
		ImgAutoFetch:         true,
		TimeToFetch:          "08:00:00",
		ImageDir:             defaultImageDir,
		StoreJpgQuality:      89,
		NumberOfImagesToKeep: 30,
		SetDesktopImage:      true,
		RetainImages:         false,
		DLService:            ServiceBing,
		Region:               defaultBingRegion,
		StateFile:            defaultStateFile,
		DesktopImg: DesktopImg{
			Enabled:    true,
			Width:      3840,
			Height:     2160,
			JpgQuality: 89,
		},
		FTV: FTV{
			Enabled:    false,
			USBMode:    true,
			JpgQuality: 89,
			FTVData:    "ftv_data.toml",
		},
		Retry: Retry{
			Enabled:                     true,
			MaxAttemptsPerDay:           12,
			DailyResetTime:              "06:00:00",
			RequireAllOperationsSuccess: true,
		},
		Constant: Constant{
			BingURL:         "https://www.bing.com/HPImageArchive.aspx",
			PeapixURL:       "https://peapix.com/bing/feed",
			AltDLService:    ServicePeapix,
			AltPeapixRegion: []string{"au", "ca", "cn", "de", "fr", "jp", "es", "gb", "us"},
			AltBingRegion:   []string{"en-AU", "en-CA", "zh-CN", "de-DE", "fr-FR", "ja-JP", "es-ES", "en-GB", "en-US"},
		},
	}
}

// DefaultPath returns the config file location, honoring BINGWALL_CONFIG.
func DefaultPath() string {
	if p := os.Getenv("BINGWALL_CONFIG"); p != "" {
		return p
	}
	return mustExpand(defaultConfigPath)
}

// Load reads the config at path, falling back to defaults when the file is
// missing. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	resolved := mustExpand(path)

	cfg := Default()
	data, err := os.ReadFile(resolved)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path atomically, creating parent directories.
func Save(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	resolved := mustExpand(path)

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func (c *Config) normalize() error {
	switch c.DLService {
	case "":
		c.DLService = ServiceBing
	case ServiceBing, ServicePeapix:
	default:
		return fmt.Errorf("unknown dl_service %q", c.DLService)
	}

	c.StoreJpgQuality = clampQuality(c.StoreJpgQuality)
	c.DesktopImg.JpgQuality = clampQuality(c.DesktopImg.JpgQuality)
	c.FTV.JpgQuality = clampQuality(c.FTV.JpgQuality)

	if c.NumberOfImagesToKeep < 0 {
		c.NumberOfImagesToKeep = 0
	}
	if c.Retry.MaxAttemptsPerDay <= 0 {
		c.Retry.MaxAttemptsPerDay = 12
	}

	var err error
	c.FetchClock, err = ParseClock(c.TimeToFetch)
	if err != nil {
		return fmt.Errorf("invalid time_to_fetch: %w", err)
	}
	c.Retry.ResetClock, err = ParseClock(c.Retry.DailyResetTime)
	if err != nil {
		// A malformed reset time falls back to 06:00:00 rather than
		// refusing to run.
		c.Retry.ResetClock = Clock{Hour: 6}
		c.Retry.DailyResetTime = "06:00:00"
	}

	c.ImageDir = resolveUnderHome(c.ImageDir, defaultImageDir)
	c.StateFile = resolveUnderHome(c.StateFile, defaultStateFile)
	c.Region = c.normalizedRegion()
	return nil
}

// normalizedRegion returns the configured region when the active service
// supports it, otherwise the service default.
func (c *Config) normalizedRegion() string {
	var list []string
	var fallback string
	switch c.DLService {
	case ServicePeapix:
		list, fallback = c.Constant.AltPeapixRegion, defaultPeapixRegion
	default:
		list, fallback = c.Constant.AltBingRegion, defaultBingRegion
	}
	for _, r := range list {
		if strings.EqualFold(r, c.Region) {
			return r
		}
	}
	return fallback
}

func clampQuality(q int) int {
	if q < JpgQualityMin {
		return JpgQualityMin
	}
	if q > JpgQualityMax {
		return JpgQualityMax
	}
	return q
}

// resolveUnderHome expands ~ and anchors relative paths at the home
// directory, which is where the image store has always lived.
func resolveUnderHome(path, fallback string) string {
	if strings.TrimSpace(path) == "" {
		path = fallback
	}
	if strings.HasPrefix(path, "~") {
		return mustExpand(path)
	}
	if filepath.IsAbs(path) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path)
}

func mustExpand(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
