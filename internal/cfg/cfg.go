// Package cfg holds tunables shared by the store, scans and tools.
package cfg

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBitmapCapacity is the default size of materialized vectors.
	DefaultBitmapCapacity = 1 << 20
	// DefaultPageTuples is the default number of tuples per stored page.
	DefaultPageTuples = 256
	// DefaultBufferTuples bounds stream buffers between store and readers.
	DefaultBufferTuples = 1024
	// DefaultMaxUnderflows is how many consecutive underflows a scan
	// tolerates before giving up.
	DefaultMaxUnderflows = 1 << 16
)

type Config struct {
	// BitmapCapacity is the number of bits in materialized vectors.
	BitmapCapacity uint64 `yaml:"bitmap_capacity"`
	// PageTuples is the number of tuples written per page.
	PageTuples int `yaml:"page_tuples"`
	// BufferTuples bounds the stream buffer feeding segment readers.
	BufferTuples int `yaml:"buffer_tuples"`
	// Workers is the number of entries decoded concurrently by unions.
	Workers int `yaml:"workers"`
	// MaxUnderflows is how many consecutive underflows a scan tolerates.
	MaxUnderflows int `yaml:"max_underflows"`
}

func NewDefaultConfig() *Config {
	return &Config{
		BitmapCapacity: DefaultBitmapCapacity,
		PageTuples:     DefaultPageTuples,
		BufferTuples:   DefaultBufferTuples,
		Workers:        4,
		MaxUnderflows:  DefaultMaxUnderflows,
	}
}

// Load reads yaml configuration from path on top of defaults.
func Load(path string) (*Config, error) {
	c := NewDefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	err = yaml.Unmarshal(data, c)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	return c, c.Validate()
}

// Validate returns an error if c contains unusable values.
func (c *Config) Validate() error {
	switch {
	case c.BitmapCapacity == 0:
		return fmt.Errorf("cfg: bitmap_capacity must be positive")
	case c.PageTuples <= 0:
		return fmt.Errorf("cfg: page_tuples must be positive")
	case c.Workers <= 0:
		return fmt.Errorf("cfg: workers must be positive")
	case c.MaxUnderflows <= 0:
		return fmt.Errorf("cfg: max_underflows must be positive")
	}
	return nil
}
