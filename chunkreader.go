package loglines

import (
	"io"
)

// DefaultChunkSize is the number of bytes requested from the source per read.
const DefaultChunkSize = 8192

const maxConsecutiveEmptyReads = 100

// byteReader owns the scan buffer. buf[off:end] holds the bytes read from r
// that have not been released yet.
type byteReader struct {
	r         io.Reader
	chunkSize int
	buf       []byte
	off       int
	end       int

	// total counts every byte accepted from r.
	total int64

	// pending is an error returned by r together with data. It is reported
	// by the next fill so the data is scanned first.
	pending error
	eof     bool

	// onGrow is called with the new capacity whenever buf is reallocated.
	onGrow func(size int)
}

func newByteReader(r io.Reader, chunkSize int) byteReader {
	return byteReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, chunkSize),
	}
}

func (br *byteReader) window() []byte {
	return br.buf[br.off:br.end]
}

// release discards the first n bytes of the window.
func (br *byteReader) release(n int) {
	br.off += n
	if br.off == br.end {
		br.off, br.end = 0, 0
	}
}

// reserve makes room for a full chunk after the window. Consumed bytes are
// reclaimed when that frees enough space, otherwise buf grows.
func (br *byteReader) reserve() {
	if len(br.buf)-br.end >= br.chunkSize {
		return
	}
	n := br.end - br.off
	if len(br.buf)-n >= br.chunkSize {
		copy(br.buf, br.buf[br.off:br.end])
		br.off, br.end = 0, n
		return
	}
	size := 2 * len(br.buf)
	if size < n+br.chunkSize {
		size = n + br.chunkSize
	}
	if rem := size % br.chunkSize; rem != 0 {
		size += br.chunkSize - rem
	}
	grown := make([]byte, size)
	copy(grown, br.buf[br.off:br.end])
	br.buf = grown
	br.off, br.end = 0, n
	if br.onGrow != nil {
		br.onGrow(size)
	}
}

// fill reads up to one chunk into the buffer after the window and returns
// the number of bytes added. 0 with a nil error means r is exhausted. On
// error nothing is added and the window is unchanged.
func (br *byteReader) fill() (int, error) {
	if br.pending != nil {
		err := br.pending
		br.pending = nil
		return 0, err
	}
	if br.eof {
		return 0, nil
	}
	br.reserve()
	for i := 0; i < maxConsecutiveEmptyReads; i++ {
		n, err := br.r.Read(br.buf[br.end : br.end+br.chunkSize])
		br.end += n
		br.total += int64(n)
		switch {
		case err == io.EOF:
			br.eof = true
		case err != nil && n > 0:
			br.pending = err
		case err != nil:
			return 0, err
		}
		if n > 0 || br.eof {
			return n, nil
		}
	}
	return 0, io.ErrNoProgress
}
