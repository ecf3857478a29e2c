package loglines

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// LogLine is a slice of the source with the number of the line it belongs to.
// Bytes aliases the Scanner's buffer and is only valid until the next call to
// Next, Scan or Close.
type LogLine struct {
	Bytes  []byte
	Number int
}

// ReadError is returned when the source fails a read.
type ReadError struct {
	// Offset is the number of bytes read from the source before the failure.
	Offset int64
	// Buffered is the number of read bytes not yet emitted. With FailOnError
	// they are never emitted.
	Buffered int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("loglines: read failed after %d bytes: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type scanState interface {
	isScanState()
}

// scanning remembers which separator ended the previous slice.
type scanning struct {
	last Separator
}

type endOfStream struct{}

type failed struct {
	err error
}

func (scanning) isScanState()    {}
func (endOfStream) isScanState() {}
func (failed) isScanState()      {}

// Scanner splits a source into LogLines.
type Scanner struct {
	opts    *Options
	src     io.Reader
	br      byteReader
	state   scanState
	lineNum int

	// scanned is the length of the window prefix known to hold no separator.
	scanned int

	line LogLine
	err  error
}

// New returns a Scanner reading from r. The Scanner is the only reader of r
// until the scan is over.
func New(r io.Reader, opts *Options) *Scanner {
	opts = opts.withDefaults()
	s := &Scanner{
		opts:  opts,
		src:   r,
		br:    newByteReader(r, opts.ChunkSize),
		state: scanning{last: LineBreak},
	}
	s.br.onGrow = func(size int) {
		opts.Logger.Debug("scan buffer grown", zap.Int("size", size))
	}
	return s
}

// Next returns the next line that passes the filters. error is io.EOF at the end.
func (s *Scanner) Next() (LogLine, error) {
	for {
		line, err := s.next()
		if err != nil {
			return LogLine{}, err
		}
		if s.keep(line.Bytes) {
			return line, nil
		}
	}
}

func (s *Scanner) keep(line []byte) bool {
	for _, filter := range s.opts.Filters {
		if !filter(line) {
			return false
		}
	}
	return true
}

func (s *Scanner) next() (LogLine, error) {
	for {
		switch st := s.state.(type) {
		case endOfStream:
			return LogLine{}, io.EOF
		case failed:
			return LogLine{}, st.err
		case scanning:
			window := s.br.window()
			pos, sep, undecided, ok := findSeparator(window, s.scanned, s.opts.Mode)
			if ok {
				return s.emit(st, pos, sep), nil
			}
			s.scanned = undecided
			n, err := s.br.fill()
			if err != nil {
				return LogLine{}, s.readFailed(err)
			}
			if n == 0 {
				return s.flush(st)
			}
		}
	}
}

func (s *Scanner) countLine(st scanning) {
	if st.last == LineBreak {
		s.lineNum++
	}
}

func (s *Scanner) emit(st scanning, pos int, sep Separator) LogLine {
	s.countLine(st)
	line := LogLine{
		Bytes:  s.br.window()[:pos:pos],
		Number: s.lineNum,
	}
	s.br.release(pos + sep.Len())
	s.scanned = 0
	s.state = scanning{last: sep}
	return line
}

// flush ends the scan, emitting whatever is left in the buffer.
func (s *Scanner) flush(st scanning) (LogLine, error) {
	s.state = endOfStream{}
	rest := s.br.window()
	if len(rest) == 0 {
		return LogLine{}, io.EOF
	}
	s.countLine(st)
	s.br.release(len(rest))
	s.scanned = 0
	return LogLine{Bytes: rest[:len(rest):len(rest)], Number: s.lineNum}, nil
}

func (s *Scanner) readFailed(err error) error {
	readErr := &ReadError{Offset: s.br.total, Buffered: len(s.br.window()), Err: err}
	s.opts.Logger.Warn("source read failed",
		zap.Int64("offset", readErr.Offset),
		zap.Int("buffered", readErr.Buffered),
		zap.Error(err),
	)
	if s.opts.OnReadError == FailOnError {
		s.state = failed{err: readErr}
	}
	return readErr
}

// Scan advances to the next line
func (s *Scanner) Scan() bool {
	s.line, s.err = s.Next()
	return s.err == nil
}

// Bytes returns the current line
func (s *Scanner) Bytes() []byte {
	return s.line.Bytes
}

// Line returns the line number of the current line
func (s *Scanner) Line() int {
	return s.line.Number
}

// Err returns the scanner's error
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Close ends the scan and closes the source if it is an io.Closer. Only the
// first call closes the source.
func (s *Scanner) Close() error {
	src := s.src
	s.src = nil
	s.state = endOfStream{}
	s.br = byteReader{}
	s.line = LogLine{}
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
