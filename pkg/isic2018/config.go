// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package isic2018

import (
	"os"
	"path/filepath"

	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultDataDir is where the ISIC 2018 archives are downloaded and extracted by default.
const DefaultDataDir = "~/work/isic2018"

// CacheSubdir is the default cache directory, relative to the data directory.
const CacheSubdir = "cache"

// Config for a Cache.
type Config struct {
	// DataDir holds the extracted role directories (e.g.: "ISIC2018_Task1-2_Training_Input").
	DataDir string `yaml:"data_dir"`

	// CacheDir where snapshots are stored. If empty, it is DataDir/cache.
	CacheDir string `yaml:"cache_dir"`

	// Parallelism of image decoding. 0 decodes sequentially, and a negative value uses the number of CPUs.
	Parallelism int `yaml:"parallelism"`

	// Verbose displays progress bars while decoding images.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DataDir: DefaultDataDir,
		Verbose: true,
	}
}

// LoadConfig reads the YAML configuration file in filePath, over the DefaultConfig values.
//
// Example:
//
//	data_dir: ~/datasets/isic2018
//	cache_dir: /tmp/isic2018_cache
//	parallelism: 8
//	verbose: false
func LoadConfig(filePath string) (Config, error) {
	config := DefaultConfig()
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return config, errors.Wrapf(err, "failed to read configuration %q", filePath)
	}
	if err = yaml.Unmarshal(contents, &config); err != nil {
		return config, errors.Wrapf(err, "failed to parse configuration %q", filePath)
	}
	return config, nil
}

// expanded returns the configuration with "~" replaced in the directories and the default CacheDir filled in.
func (config Config) expanded() (Config, error) {
	if config.DataDir == "" {
		return config, errors.New("isic2018 configuration requires a DataDir")
	}
	var err error
	if config.DataDir, err = fsutil.ReplaceTildeInDir(config.DataDir); err != nil {
		return config, err
	}
	if config.CacheDir == "" {
		config.CacheDir = filepath.Join(config.DataDir, CacheSubdir)
	} else if config.CacheDir, err = fsutil.ReplaceTildeInDir(config.CacheDir); err != nil {
		return config, err
	}
	return config, nil
}
