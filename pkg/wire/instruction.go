// Package wire implements the gateway's line-oriented, length-prefixed
// textual instruction framing: fields are rendered as
// "<codepoint-count>.<utf8-payload>", comma-joined, semicolon
// terminated. Binary payloads travel as base64-encoded fields.
package wire

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Instruction is a decoded wire instruction: an opcode followed by
// zero or more string-typed arguments. Integer and double arguments
// are encoded as decimal strings per spec; callers parse integers with
// AtoiOrZero and render them with FormatInt/FormatDouble below.
type Instruction struct {
	Opcode string
	Args   []string
}

// Field renders a single length-prefixed field: the length is the
// number of Unicode code points in s, not its byte length.
func Field(s string) string {
	return strconv.Itoa(utf8.RuneCountInString(s)) + "." + s
}

// FormatInt renders an integer field using signed decimal.
func FormatInt(v int) string {
	return strconv.Itoa(v)
}

// AtoiOrZero parses an integer field, returning 0 for anything
// malformed rather than an error: callers sit at the dispatch boundary
// where a bad value should degrade gracefully, not abort the handler.
func AtoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// FormatDouble renders a double field using sixteen significant
// decimal digits.
func FormatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', 16, 64)
}

// Encode renders a full instruction: comma-separated length-prefixed
// fields terminated by a semicolon. The opcode itself is the first
// field.
func Encode(opcode string, args ...string) string {
	var b strings.Builder
	b.WriteString(Field(opcode))
	for _, a := range args {
		b.WriteByte(',')
		b.WriteString(Field(a))
	}
	b.WriteByte(';')
	return b.String()
}

// Decode parses exactly one instruction from s, which must consist of
// a full instruction (trailing semicolon included) and nothing else.
// Use a Scanner to pull instructions out of a byte stream.
func Decode(s string) (Instruction, error) {
	fields, rest, err := decodeFields(s)
	if err != nil {
		return Instruction{}, err
	}
	if rest != "" {
		return Instruction{}, fmt.Errorf("wire: trailing data after instruction: %q", rest)
	}
	if len(fields) == 0 {
		return Instruction{}, fmt.Errorf("wire: empty instruction")
	}
	return Instruction{Opcode: fields[0], Args: fields[1:]}, nil
}

// decodeFields parses fields up to and including the terminating
// semicolon, returning the fields and any bytes remaining after it.
func decodeFields(s string) (fields []string, rest string, err error) {
	for {
		dot := strings.IndexByte(s, '.')
		if dot < 0 {
			return nil, "", fmt.Errorf("wire: malformed field, no length separator in %q", s)
		}
		n, convErr := strconv.Atoi(s[:dot])
		if convErr != nil || n < 0 {
			return nil, "", fmt.Errorf("wire: invalid field length %q", s[:dot])
		}
		payload := s[dot+1:]

		// n counts Unicode code points, not bytes: walk n runes to
		// find the byte offset where the payload ends.
		idx := 0
		for i := 0; i < n; i++ {
			if idx >= len(payload) || !utf8.FullRuneInString(payload[idx:]) {
				// Either the buffer ends mid-field or it ends on a
				// truncated multi-byte rune; a streaming caller should
				// keep reading.
				return nil, "", fmt.Errorf("wire: field length %d exceeds available payload", n)
			}
			r, size := utf8.DecodeRuneInString(payload[idx:])
			if r == utf8.RuneError && size <= 1 {
				return nil, "", fmt.Errorf("wire: invalid utf8 in field payload")
			}
			idx += size
		}
		fields = append(fields, payload[:idx])

		if idx >= len(payload) {
			return nil, "", fmt.Errorf("wire: instruction missing terminator")
		}
		switch payload[idx] {
		case ',':
			s = payload[idx+1:]
			continue
		case ';':
			return fields, payload[idx+1:], nil
		default:
			return nil, "", fmt.Errorf("wire: expected ',' or ';' after field, got %q", payload[idx])
		}
	}
}
