package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

// NovaSqlConfig is the on-disk YAML shape read by every command that opens
// a Database: the BufferPool/Page sections expose the two capacity knobs
// spec.md §6 calls out (poolSize, pageCapacity) so an embedder can tune
// them from a file instead of hardcoding engine.Config values.
type NovaSqlConfig struct {
	Storage struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"storage"`
	Page struct {
		Size int `mapstructure:"size"`
	} `mapstructure:"page"`
	BufferPool struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"buffer_pool"`
	Server struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
}

func LoadConfig(path string) (*NovaSqlConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NovaSqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
