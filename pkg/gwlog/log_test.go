package gwlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "surface").With("surface_id", 3)
	l.Info("flushed", "bytes", 128)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"component":"surface"`))
	assert.True(t, strings.Contains(out, `"surface_id":3`))
	assert.True(t, strings.Contains(out, `"bytes":128`))
	assert.True(t, strings.Contains(out, `"message":"flushed"`))
}
