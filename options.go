package loglines

import "go.uber.org/zap"

// Mode selects which separators end a slice.
type Mode int

const (
	// ModeSubLines splits on both LineBreak and EscapedBreak. Sub-lines share
	// the line number of the line they belong to.
	ModeSubLines Mode = iota
	// ModeLines splits on LineBreak only.
	ModeLines
)

// ReadErrorPolicy decides what happens after the source fails a read.
type ReadErrorPolicy int

const (
	// FailOnError makes the first read error terminal. Every later call
	// returns the same error.
	FailOnError ReadErrorPolicy = iota
	// RetryOnError reports the error and leaves the scanner as it was, so the
	// next call reads from the source again.
	RetryOnError
)

// Options are options for a Scanner
type Options struct {
	Mode        Mode
	ChunkSize   int
	OnReadError ReadErrorPolicy
	Filters     []Filter
	Logger      *zap.Logger
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		o = new(Options)
	}
	out := *o
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}
