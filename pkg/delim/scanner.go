package delim

import "strings"

type scanState int

const (
	stateSearching scanState = iota
	stateAccumulating
)

// Scanner extracts payloads enclosed by an open/close marker pair from a
// stream of text chunks. Markers may be split across chunk boundaries; text
// outside a marker pair is dropped.
type Scanner struct {
	open  string
	close string
	buf   string
	state scanState
}

func NewScanner(open, close string) *Scanner {
	return &Scanner{
		open:  open,
		close: close,
		state: stateSearching,
	}
}

// Feed appends a chunk to the internal buffer and returns every payload whose
// closing marker completed within this chunk, in arrival order. The slice is
// empty (possibly nil) when no span completed yet.
func (s *Scanner) Feed(chunk string) []string {
	s.buf += chunk

	var out []string
	for {
		switch s.state {
		case stateSearching:
			idx := strings.Index(s.buf, s.open)
			if idx < 0 {
				// Keep only a possible partial open marker at the tail so the
				// buffer cannot grow on noise.
				if keep := len(s.open) - 1; len(s.buf) > keep {
					s.buf = s.buf[len(s.buf)-keep:]
				}
				return out
			}
			s.buf = s.buf[idx+len(s.open):]
			s.state = stateAccumulating

		case stateAccumulating:
			idx := strings.Index(s.buf, s.close)
			if idx < 0 {
				return out
			}
			out = append(out, s.buf[:idx])
			s.buf = s.buf[idx+len(s.close):]
			s.state = stateSearching
		}
	}
}

// Reset discards buffered input and returns the scanner to its initial state.
func (s *Scanner) Reset() {
	s.buf = ""
	s.state = stateSearching
}
