// Package diag is the output sink of the refinement engine. Messages are
// purely informational; nothing in the engine branches on what a sink does.
package diag

import (
	"fmt"
	"sync"

	"github.com/cpmech/gosl/io"
)

// Kind grades an error message
type Kind uint8

const (
	Warning Kind = iota
	Error
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return "FATAL"
}

// Sink receives user text and error messages
type Sink interface {
	UserWrite(format string, args ...interface{})
	PrintErrorMessage(kind Kind, where, format string, args ...interface{})
}

// Console prints through gosl/io. User text is only shown when Verbose is
// set and, in distributed runs, only on rank 0; errors are always shown and
// carry the rank.
type Console struct {
	Verbose bool
	Rank    int
	Ranks   int
}

func (c Console) UserWrite(format string, args ...interface{}) {
	if !c.Verbose || c.Rank != 0 {
		return
	}
	io.Pf(format, args...)
}

func (c Console) PrintErrorMessage(kind Kind, where, format string, args ...interface{}) {
	prefix := fmt.Sprintf("%s in %s", kind, where)
	if c.Ranks > 1 {
		prefix = fmt.Sprintf("[%d] %s", c.Rank, prefix)
	}
	msg := fmt.Sprintf(format, args...)
	switch kind {
	case Warning:
		io.Pfyel("%s: %s\n", prefix, msg)
	default:
		io.PfRed("%s: %s\n", prefix, msg)
	}
}

// Message is one recorded error message
type Message struct {
	Kind  Kind
	Where string
	Text  string
}

func (m Message) String() string { return fmt.Sprintf("%s in %s: %s", m.Kind, m.Where, m.Text) }

// Recorder keeps everything it receives, for tests
type Recorder struct {
	mu       sync.Mutex
	Text     []string
	Messages []Message
}

func (r *Recorder) UserWrite(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Text = append(r.Text, fmt.Sprintf(format, args...))
}

func (r *Recorder) PrintErrorMessage(kind Kind, where, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Message{Kind: kind, Where: where, Text: fmt.Sprintf(format, args...)})
}

// Count returns how many messages of kind k were recorded
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.Messages {
		if m.Kind == k {
			n++
		}
	}
	return n
}

type discard struct{}

func (discard) UserWrite(string, ...interface{})                       {}
func (discard) PrintErrorMessage(Kind, string, string, ...interface{}) {}

// Discard drops every message
var Discard Sink = discard{}
