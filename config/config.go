// Package config reads the ini file of the ugrefine driver
package config

import (
	"fmt"
	"strings"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/partitions"
	"github.com/notargets/ugrefine/refine"
	"gopkg.in/gcfg.v1"
)

// Config mirrors the sections of the driver file:
//
//	[mesh]
//	file = mesh.neu        ; read instead of generating
//	shape = tri            ; tri quad tet hex prism
//	cells = 4
//
//	[refine]
//	mark = all             ; all, corner or none
//	passes = 2
//	copy = local
//	copy-depth = 1
//	hanging-nodes = false
//	fifo = false
//	max-objects = 0
//	coarsen = false
//	verbose = true
//
//	[parallel]
//	ranks = 1
//	strategy = graph       ; block roundrobin graph
//	sequential-fallback = false
type Config struct {
	Mesh struct {
		File  string
		Shape string
		Cells int
	}
	Refine struct {
		Mark         string
		Passes       int
		Copy         string
		CopyDepth    int  `gcfg:"copy-depth"`
		HangingNodes bool `gcfg:"hanging-nodes"`
		FIFO         bool `gcfg:"fifo"`
		MaxObjects   int  `gcfg:"max-objects"`
		Coarsen      bool
		Verbose      bool
	}
	Parallel struct {
		Ranks              int
		Strategy           string
		SequentialFallback bool `gcfg:"sequential-fallback"`
	}
}

// Default returns the configuration used when no file is given
func Default() *Config {
	c := &Config{}
	c.Mesh.Shape = "tri"
	c.Mesh.Cells = 4
	c.Refine.Mark = "corner"
	c.Refine.Passes = 1
	c.Refine.Copy = "local"
	c.Refine.CopyDepth = 1
	c.Parallel.Ranks = 1
	c.Parallel.Strategy = partitions.GraphPartition.String()
	return c
}

// Parse reads an ini text over the defaults
func Parse(text string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadStringInto(c, text); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, c.Validate()
}

// ReadFile reads an ini file over the defaults
func ReadFile(name string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadFileInto(c, name); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return c, c.Validate()
}

var shapes = map[string]element.ElementGeometry{
	"tri": element.Tri, "quad": element.Quad,
	"tet": element.Tet, "hex": element.Hex, "prism": element.Prism,
}

// Geometry returns the element shape of generated meshes
func (c *Config) Geometry() (element.ElementGeometry, error) {
	g, ok := shapes[strings.ToLower(c.Mesh.Shape)]
	if !ok {
		return 0, fmt.Errorf("config: unknown shape %q", c.Mesh.Shape)
	}
	return g, nil
}

// Strategy returns the partition strategy of distributed runs
func (c *Config) Strategy() (partitions.PartitionStrategy, error) {
	s, err := partitions.ParseStrategy(strings.ToLower(c.Parallel.Strategy))
	if err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// Validate checks ranges and names, lower casing the mark and copy names
func (c *Config) Validate() error {
	c.Refine.Mark = strings.ToLower(c.Refine.Mark)
	c.Refine.Copy = strings.ToLower(c.Refine.Copy)
	if c.Mesh.File == "" {
		if _, err := c.Geometry(); err != nil {
			return err
		}
		if c.Mesh.Cells < 1 {
			return fmt.Errorf("config: cells must be positive, got %d", c.Mesh.Cells)
		}
	}
	switch c.Refine.Mark {
	case "all", "corner", "none":
	default:
		return fmt.Errorf("config: unknown mark strategy %q", c.Refine.Mark)
	}
	switch c.Refine.Copy {
	case "local", "all":
	default:
		return fmt.Errorf("config: unknown copy mode %q", c.Refine.Copy)
	}
	if c.Refine.Passes < 0 || c.Refine.CopyDepth < 0 || c.Refine.MaxObjects < 0 {
		return fmt.Errorf("config: negative passes, copy-depth or max-objects")
	}
	if c.Parallel.Ranks < 1 {
		return fmt.Errorf("config: ranks must be positive, got %d", c.Parallel.Ranks)
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	return nil
}

// ToOptions converts the [refine] and [parallel] sections to pass options.
// Sink, table and overlap are left to the caller.
func (c *Config) ToOptions() refine.Options {
	opts := refine.Options{
		CopyDepth:          c.Refine.CopyDepth,
		HangingNodes:       c.Refine.HangingNodes,
		FIFO:               c.Refine.FIFO,
		MaxObjects:         c.Refine.MaxObjects,
		SequentialFallback: c.Parallel.SequentialFallback,
	}
	if c.Refine.Copy == "all" {
		opts.Copy = refine.CopyAll
	}
	return opts
}
