package loglines

import (
	"bytes"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Filter returns true when a line should be kept. line aliases the scan
// buffer and must not be retained.
type Filter func(line []byte) bool

var blank = [256]bool{
	' ':  true,
	'\r': true,
	'\n': true,
	'\t': true,
}

func firstNonBlank(line []byte) (byte, bool) {
	for _, b := range line {
		if !blank[b] {
			return b, true
		}
	}
	return 0, false
}

// SkipBlank drops lines that are empty or only whitespace
func SkipBlank() Filter {
	return func(line []byte) bool {
		_, ok := firstNonBlank(line)
		return ok
	}
}

// OnlyJSONObjects keeps lines whose first non-whitespace byte is '{'
func OnlyJSONObjects() Filter {
	return func(line []byte) bool {
		b, ok := firstNonBlank(line)
		return ok && b == '{'
	}
}

// ValidJSON keeps lines that hold a single valid json value
func ValidJSON() Filter {
	return func(line []byte) bool {
		return jsoniter.ConfigFastest.Valid(line)
	}
}

// Contains keeps lines containing substr
func Contains(substr []byte) Filter {
	return func(line []byte) bool {
		return bytes.Contains(line, substr)
	}
}

// ValueMatcher matches a decoded json value
type ValueMatcher func(val interface{}) bool

// FieldMatcher matches the value of a top-level json field
type FieldMatcher struct {
	Field string
	Match ValueMatcher
}

// MatchJSONFields keeps json object lines where every matcher's field is
// present and matches. The first occurrence of a field is the one matched.
func MatchJSONFields(matchers []FieldMatcher) Filter {
	return func(line []byte) bool {
		iter := jsoniter.ConfigFastest.BorrowIterator(line)
		defer jsoniter.ConfigFastest.ReturnIterator(iter)
		matched := make([]bool, len(matchers))
		remaining := len(matchers)
		ok := true
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
			var val interface{}
			decoded := false
			for i, m := range matchers {
				if matched[i] || m.Field != field {
					continue
				}
				if !decoded {
					val = iter.Read()
					decoded = true
				}
				matched[i] = true
				remaining--
				if !m.Match(val) {
					ok = false
					return false
				}
			}
			if !decoded {
				iter.Skip()
			}
			return remaining > 0
		})
		return ok && remaining == 0 && iter.Error == nil
	}
}

// StringValue matches string values with match
func StringValue(match func(val string) bool) ValueMatcher {
	return func(val interface{}) bool {
		s, ok := val.(string)
		return ok && match(s)
	}
}

// TimeValue matches RFC3339 string values with match
func TimeValue(match func(val time.Time) bool) ValueMatcher {
	return StringValue(func(val string) bool {
		tm, err := time.Parse(time.RFC3339, val)
		return err == nil && match(tm)
	})
}
