package loglines

import "bytes"

// Separator is the byte sequence that ended a slice.
type Separator int

const (
	// LineBreak is a single '\n' byte.
	LineBreak Separator = iota
	// EscapedBreak is the two bytes '\' 'n'. It ends a sub-line.
	EscapedBreak
)

// Len returns the number of bytes of the separator.
func (s Separator) Len() int {
	switch s {
	case EscapedBreak:
		return 2
	default:
		return 1
	}
}

func (s Separator) String() string {
	switch s {
	case LineBreak:
		return "LineBreak"
	case EscapedBreak:
		return "EscapedBreak"
	default:
		return "Separator(?)"
	}
}

// findSeparator returns the position and kind of the first separator in
// buf at or after from. When ok is false, undecided is the lowest position
// that may still start a separator once more bytes arrive.
func findSeparator(buf []byte, from int, mode Mode) (pos int, sep Separator, undecided int, ok bool) {
	if mode == ModeLines {
		idx := bytes.IndexByte(buf[from:], '\n')
		if idx < 0 {
			return 0, 0, len(buf), false
		}
		return from + idx, LineBreak, 0, true
	}
	for i := from; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			return i, LineBreak, 0, true
		case '\\':
			if i+1 == len(buf) {
				// a lone trailing '\' needs the next byte
				return 0, 0, i, false
			}
			if buf[i+1] == 'n' {
				return i, EscapedBreak, 0, true
			}
		}
	}
	return 0, 0, len(buf), false
}
