package resilience

import (
	"strings"
	"unicode/utf8"
)

// overlapMerger holds back the start of a continuation attempt until the
// re-emitted tail of the previous output can be recognised and dropped.
//
// The anchor has to appear verbatim and start within the first slack runes
// of the attempt. Everything up to and including that occurrence is
// discarded. When the buffer grows past slack runes without a match, or the
// attempt ends first, the buffer is released unmodified.
//
// An anchor made only of whitespace, such as code indentation, can match new
// leading text that merely looks the same; that text is dropped with it.
type overlapMerger struct {
	anchor   string
	slack    int
	buf      strings.Builder
	resolved bool
}

func newOverlapMerger(anchor string, slack int) *overlapMerger {
	return &overlapMerger{anchor: anchor, slack: slack}
}

// Push adds delta and returns the text that may be forwarded now.
func (m *overlapMerger) Push(delta string) string {
	if m.resolved {
		return delta
	}
	m.buf.WriteString(delta)
	s := m.buf.String()

	if out, ok := m.strip(s); ok {
		return m.resolve(out)
	}
	if m.anchor == "" || utf8.RuneCountInString(s) > m.slack {
		return m.resolve(s)
	}
	return ""
}

// Flush resolves whatever is still buffered at the end of the attempt.
func (m *overlapMerger) Flush() string {
	if m.resolved {
		return ""
	}
	s := m.buf.String()
	if out, ok := m.strip(s); ok {
		return m.resolve(out)
	}
	return m.resolve(s)
}

func (m *overlapMerger) strip(s string) (string, bool) {
	if m.anchor == "" {
		return "", false
	}
	i := strings.Index(s, m.anchor)
	if i < 0 || utf8.RuneCountInString(s[:i]) > m.slack {
		return "", false
	}
	return s[i+len(m.anchor):], true
}

func (m *overlapMerger) resolve(out string) string {
	m.resolved = true
	m.buf.Reset()
	return out
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := len(s); i > 0; {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		count++
		if count == n {
			return s[i:]
		}
	}
	return s
}
