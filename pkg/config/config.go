// Package config loads the tunables a caller wires into the buffer pool
// and hash index constructors. It is deliberately a caller-side
// convenience: the buffer pool and index types themselves take plain Go
// parameters and know nothing about files, flags, or the environment.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Options holds every tunable this module's constructors accept.
type Options struct {
	// PoolSizePerInstance is the frame count of each buffer pool shard.
	PoolSizePerInstance int `mapstructure:"pool_size_per_instance"`
	// NumInstances is the shard count of the parallel buffer pool.
	NumInstances int `mapstructure:"num_instances"`
	// DataFile is the path the disk manager reads/writes pages from.
	DataFile string `mapstructure:"data_file"`
	// KeyWidth is the encoded width, in bytes, of hash index keys (one
	// of 4, 8, 16, 32, 64 per the fixed-width key instantiation set).
	KeyWidth int `mapstructure:"key_width"`
}

func defaults() Options {
	return Options{
		PoolSizePerInstance: 64,
		NumInstances:        4,
		DataFile:            "pagestore.db",
		KeyWidth:            8,
	}
}

// Load reads configuration from configPath (if non-empty) layered over
// environment variables prefixed PAGESTORE_ and the built-in defaults.
// A missing config file is not an error — defaults and env vars still
// apply.
func Load(configPath string) (Options, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("pool_size_per_instance", d.PoolSizePerInstance)
	v.SetDefault("num_instances", d.NumInstances)
	v.SetDefault("data_file", d.DataFile)
	v.SetDefault("key_width", d.KeyWidth)

	v.SetEnvPrefix("PAGESTORE")
	v.AutomaticEnv()
	// AutomaticEnv only affects Get; Unmarshal needs every key bound
	// explicitly to pick up an env override.
	for _, key := range []string{"pool_size_per_instance", "num_instances", "data_file", "key_width"} {
		if err := v.BindEnv(key); err != nil {
			return Options{}, errors.Wrapf(err, "binding env for %s", key)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// An explicitly set path that does not exist surfaces as a
			// plain not-exist error, not ConfigFileNotFoundError.
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !os.IsNotExist(err) {
				return Options{}, errors.Wrapf(err, "loading config from %s", configPath)
			}
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, errors.Wrap(err, "unmarshalling pagestore config")
	}
	return opts, nil
}
