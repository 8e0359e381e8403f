package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	TransportGPIO = "gpio"
	TransportSPI  = "spi"
)

type GPIO struct {
	Data  string `yaml:"data"`  // e.g. GPIO23
	Clock string `yaml:"clock"` // e.g. GPIO24
}

type SPI struct {
	Port    string `yaml:"port"`     // spireg name, "" for the first port
	SpeedHz int64  `yaml:"speed_hz"` // e.g. 4000000
}

type Config struct {
	Transport      string  `yaml:"transport"` // "gpio" | "spi"
	Pixels         int     `yaml:"pixels"`
	ClearOnRelease bool    `yaml:"clear_on_release"`
	Brightness     float64 `yaml:"brightness"`
	SK9822Latch    bool    `yaml:"sk9822_latch"`

	GPIO GPIO `yaml:"gpio"`
	SPI  SPI  `yaml:"spi,omitempty"`

	RefreshHz float64 `yaml:"refresh_hz"` // 0 disables periodic re-send
	Listen    string  `yaml:"listen"`     // control server address, "" disables
	LogLevel  string  `yaml:"log_level"`
}

// Default is an 8 pixel Blinkt! on GPIO23/GPIO24.
func Default() *Config {
	return &Config{
		Transport:      TransportGPIO,
		Pixels:         8,
		ClearOnRelease: true,
		Brightness:     7.0 / 31.0,
		GPIO:           GPIO{Data: "GPIO23", Clock: "GPIO24"},
		SPI:            SPI{SpeedHz: 4000000},
		LogLevel:       "info",
	}
}

// Load reads path on top of Default, so missing keys keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	switch c.Transport {
	case TransportGPIO:
		if c.GPIO.Data == "" || c.GPIO.Clock == "" {
			return fmt.Errorf("gpio transport needs both data and clock pins")
		}
		if c.GPIO.Data == c.GPIO.Clock {
			return fmt.Errorf("data and clock must be different pins, both are %s", c.GPIO.Data)
		}
	case TransportSPI:
		if c.SPI.SpeedHz < 0 {
			return fmt.Errorf("invalid spi speed %d", c.SPI.SpeedHz)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Pixels < 1 {
		return fmt.Errorf("invalid pixel count %d", c.Pixels)
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		return fmt.Errorf("brightness %v outside 0..1", c.Brightness)
	}
	if c.RefreshHz < 0 {
		return fmt.Errorf("invalid refresh rate %v", c.RefreshHz)
	}
	return nil
}
