package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/partitions"
	"github.com/notargets/ugrefine/refine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
; two ranks on a tetrahedral cube
[mesh]
shape = tet
cells = 2

[refine]
mark = all
passes = 2
copy = all
copy-depth = 2
fifo = true
max-objects = 50000
verbose = true

[parallel]
ranks = 2
strategy = block
sequential-fallback = true
`

func TestParse(t *testing.T) {
	c, err := Parse(sample)
	require.NoError(t, err)

	g, err := c.Geometry()
	require.NoError(t, err)
	assert.Equal(t, element.Tet, g)
	assert.Equal(t, 2, c.Mesh.Cells)
	assert.Equal(t, 2, c.Refine.Passes)
	assert.True(t, c.Refine.Verbose)
	assert.False(t, c.Refine.HangingNodes)
	assert.Equal(t, 2, c.Parallel.Ranks)
	s, err := c.Strategy()
	require.NoError(t, err)
	assert.Equal(t, partitions.BlockPartition, s)

	opts := c.ToOptions()
	assert.Equal(t, refine.CopyAll, opts.Copy)
	assert.Equal(t, 2, opts.CopyDepth)
	assert.True(t, opts.FIFO)
	assert.True(t, opts.SequentialFallback)
	assert.Equal(t, 50000, opts.MaxObjects)
	assert.Nil(t, opts.Overlap)
}

func TestDefaults(t *testing.T) {
	c, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	opts := c.ToOptions()
	assert.Equal(t, refine.CopyLocal, opts.Copy)
	assert.Equal(t, 1, opts.CopyDepth)
}

func TestValidate(t *testing.T) {
	for name, text := range map[string]string{
		"shape":    "[mesh]\nshape = octagon",
		"cells":    "[mesh]\ncells = 0",
		"mark":     "[refine]\nmark = some",
		"copy":     "[refine]\ncopy = none",
		"ranks":    "[parallel]\nranks = 0",
		"strategy": "[parallel]\nstrategy = metis",
		"unknown":  "[refine]\nspeed = 3",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			assert.Error(t, err)
		})
	}
}

func TestReadFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ugrefine.ini")
	require.NoError(t, os.WriteFile(name, []byte("[mesh]\nfile = strip.neu\nshape = none\n"), 0o644))
	c, err := ReadFile(name)
	require.NoError(t, err)
	// a mesh file makes the generator settings irrelevant
	assert.Equal(t, "strip.neu", c.Mesh.File)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}
