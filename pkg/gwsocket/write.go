package gwsocket

// WriteInstruction atomically writes a pre-encoded instruction string
// to sock, bracketed by Begin/End so concurrent emitters never
// interleave fields.
func WriteInstruction(sock Socket, encoded string) error {
	sock.Begin()
	defer sock.End()
	_, err := sock.Write([]byte(encoded))
	return err
}
