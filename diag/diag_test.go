package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	var s Sink = &r
	s.UserWrite("level %d: %d elements", 1, 4)
	s.PrintErrorMessage(Warning, "GridClosure", "edge %d-%d", 3, 7)
	s.PrintErrorMessage(Fatal, "RefineElement", "no rule")
	assert.Equal(t, []string{"level 1: 4 elements"}, r.Text)
	assert.Equal(t, 1, r.Count(Warning))
	assert.Equal(t, 1, r.Count(Fatal))
	assert.Equal(t, 0, r.Count(Error))
	assert.Equal(t, "WARNING in GridClosure: edge 3-7", r.Messages[0].String())
}

func TestDiscardAndConsole(t *testing.T) {
	// Neither may panic; the console only prints when verbose on rank 0
	Discard.UserWrite("ignored %d", 1)
	Discard.PrintErrorMessage(Error, "x", "ignored")
	c := Console{Verbose: false, Rank: 1, Ranks: 2}
	c.UserWrite("hidden")
	c.PrintErrorMessage(Warning, "test", "shown with rank prefix")
}
