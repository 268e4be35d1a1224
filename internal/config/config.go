// Package config loads the on-disk YAML configuration and assembles the
// simulator from it.
package config

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"pack_simulator/internal/bms"
	"pack_simulator/internal/cell"
	"pack_simulator/internal/pack"
	"pack_simulator/internal/sim"
	"pack_simulator/internal/thermal"
)

// Config is the on-disk configuration shape (YAML). Optional sections are
// pointers; nil disables the feature.
type Config struct {
	Cell    cell.Params    `yaml:"cell"`
	Pack    pack.Params    `yaml:"pack"`
	Thermal thermal.Params `yaml:"thermal"`
	Sim     sim.Params     `yaml:"sim"`

	// Network switches the thermal model from lumped to a per-group node
	// chain when present.
	Network *thermal.NetworkParams `yaml:"network"`

	Variation  *pack.Variation `yaml:"variation"`
	Balancing  *pack.Balancing `yaml:"balancing"`
	Aging      *pack.Aging     `yaml:"aging"`
	Protection *bms.Limits     `yaml:"protection"`
}

// Default returns the built-in 40s3p configuration with a lumped thermal
// model and every optional feature off.
func Default() Config {
	return Config{
		Cell:    cell.DefaultParams(),
		Pack:    pack.DefaultParams(),
		Thermal: thermal.DefaultParams(),
		Sim:     sim.DefaultParams(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Sections absent from the file keep their default values.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks every section. Construction-time checks that need the
// assembled objects (thermal stability against the step size, node count
// against the pack) happen in Build.
func (c *Config) Validate() error {
	if err := c.Cell.Validate(); err != nil {
		return err
	}
	if err := c.Pack.Validate(); err != nil {
		return err
	}
	if err := c.Thermal.Validate(); err != nil {
		return err
	}
	if err := c.Sim.Validate(); err != nil {
		return err
	}
	if c.Variation != nil {
		if err := c.Variation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PackOptions bundles the optional pack behaviors for pack.New.
func (c *Config) PackOptions() pack.Options {
	return pack.Options{
		Variation: c.Variation,
		Balancing: c.Balancing,
		Aging:     c.Aging,
	}
}

// BuildThermal constructs the configured thermal model.
func (c *Config) BuildThermal() (thermal.Model, error) {
	if c.Network != nil {
		return thermal.NewNetwork(c.Thermal, *c.Network)
	}
	return thermal.NewLumped(c.Thermal)
}

// Build assembles the pack, thermal model, and simulator. cb may be nil.
func (c *Config) Build(cb sim.Callback) (*sim.Simulator, error) {
	var rng *rand.Rand
	if c.Variation != nil {
		rng = c.Variation.Rand()
	}
	pk, err := pack.New(c.Cell, c.Pack, c.PackOptions(), rng)
	if err != nil {
		return nil, err
	}
	th, err := c.BuildThermal()
	if err != nil {
		return nil, err
	}
	return sim.New(pk, th, c.Sim, cb)
}
