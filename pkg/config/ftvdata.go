package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Target describes one Frame TV from the ftv_data file, keyed by TV name.
type Target struct {
	IPAddr       string `toml:"ip_addr"`
	Port         int    `toml:"port"`
	ImgRate      int    `toml:"img_rate"`
	MACAddr      string `toml:"mac_addr"`
	APITokenFile string `toml:"api_token_file"`
}

// ResolveFTVDataPath locates the ftv_data file relative to the config file.
func ResolveFTVDataPath(configPath, dataFile string) string {
	if filepath.IsAbs(dataFile) {
		return dataFile
	}
	if configPath == "" {
		configPath = DefaultPath()
	}
	return filepath.Join(filepath.Dir(mustExpand(configPath)), dataFile)
}

// LoadFTVData reads the TV inventory file.
func LoadFTVData(path string) (map[string]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ftv data file: %w", err)
	}
	targets := make(map[string]Target)
	if err := toml.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("failed to parse ftv data file: %w", err)
	}
	for name, t := range targets {
		if t.IPAddr == "" {
			return nil, fmt.Errorf("tv %q has no ip_addr", name)
		}
		if t.MACAddr != "" {
			if _, err := net.ParseMAC(t.MACAddr); err != nil {
				return nil, fmt.Errorf("tv %q has invalid mac_addr: %w", name, err)
			}
		}
		if t.Port == 0 {
			t.Port = 8002
		}
		if t.ImgRate <= 0 {
			t.ImgRate = 180
		}
		targets[name] = t
	}
	return targets, nil
}
