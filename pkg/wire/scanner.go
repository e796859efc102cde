package wire

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Scanner reads a byte stream and yields one Instruction at a time,
// buffering partial reads across calls the way the original codec
// accumulates bytes until a full instruction is available. Field
// length prefixes are honored while accumulating, so a ';' or ','
// byte inside a field's payload never truncates the frame early.
type Scanner struct {
	r   *bufio.Reader
	buf []byte
	err error
}

// NewScanner wraps r for instruction-at-a-time decoding.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next reads and decodes the next instruction from the stream,
// blocking until one full instruction is available.
func (s *Scanner) Next() (Instruction, error) {
	if s.err != nil {
		return Instruction{}, s.err
	}

	for {
		fields, rest, err := decodeFields(string(s.buf))
		if err == nil {
			if rest != "" {
				// Shouldn't happen: we stop growing the buffer the
				// instant a full instruction is available.
				s.err = fmt.Errorf("wire: scanner: unexpected trailing data %q", rest)
				return Instruction{}, s.err
			}
			s.buf = nil
			if len(fields) == 0 {
				s.err = fmt.Errorf("wire: scanner: empty instruction")
				return Instruction{}, s.err
			}
			return Instruction{Opcode: fields[0], Args: fields[1:]}, nil
		}
		if !needsMoreData(err) {
			s.err = fmt.Errorf("wire: scanner: %w", err)
			return Instruction{}, s.err
		}

		b, rerr := s.r.ReadByte()
		if rerr != nil {
			s.err = rerr
			return Instruction{}, rerr
		}
		s.buf = append(s.buf, b)
	}
}

// needsMoreData reports whether err from decodeFields indicates a
// truncated-so-far buffer rather than a genuine protocol violation.
func needsMoreData(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no length separator") ||
		strings.Contains(msg, "exceeds available payload") ||
		strings.Contains(msg, "missing terminator")
}
