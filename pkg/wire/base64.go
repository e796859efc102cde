package wire

import "encoding/base64"

// EncodeBlob base64-encodes binary payload for use as a blob field.
func EncodeBlob(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBlob decodes a base64 blob field into dst and returns the
// number of decoded bytes, terminating at the first '=' pad character
// as the original protocol's in-place decoder does. The bytes land in
// dst only when its capacity is at least DecodedLen(len(s)); with a
// smaller dst they are decoded into a private buffer and only the
// count is returned.
func DecodeBlob(dst []byte, s string) (int, error) {
	trimmed := s
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			trimmed = s[:i]
			break
		}
	}
	enc := base64.RawStdEncoding
	n := enc.DecodedLen(len(trimmed))
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	if _, err := enc.Decode(dst, []byte(trimmed)); err != nil {
		return 0, err
	}
	return n, nil
}

// DecodedLen returns floor(inputLen * 3/4), the byte count produced
// by decoding a base64 string of inputLen characters (ignoring pad
// characters), matching the in-place decoder's accounting.
func DecodedLen(inputLen int) int {
	return (inputLen * 3) / 4
}
