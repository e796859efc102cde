package gwsocket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingMirrorsInstructionStream(t *testing.T) {
	inner := NewMemSocket()
	var transcript bytes.Buffer
	rec := NewRecording(inner, &transcript)

	require.NoError(t, WriteInstruction(rec, "4.sync;"))
	require.NoError(t, WriteInstruction(rec, "3.nop;"))

	assert.Equal(t, "4.sync;3.nop;", inner.String())
	assert.Equal(t, inner.String(), transcript.String(), "the transcript is byte-identical to the live stream")
}

func TestRecordingSinkErrorDoesNotBreakLiveSocket(t *testing.T) {
	inner := NewMemSocket()
	rec := NewRecording(inner, failingWriter{})

	require.NoError(t, WriteInstruction(rec, "4.sync;"))
	assert.Equal(t, "4.sync;", inner.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, assert.AnError
}
