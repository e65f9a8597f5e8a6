package version

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestVersionDefaults(t *testing.T) {
	v := Version()
	assert.Equal(t, "unknown", v.Version)
	assert.Equal(t, "unknown", v.Branch)
	assert.Equal(t, "unknown", v.Revision)
	assert.Equal(t, "unknown", v.GoVersion)
	assert.Equal(t, "unknown", v.BuildDate)
}

func TestPrint(t *testing.T) {
	out := captureStdout(t, Print)
	assert.Equal(t, "winforge unknown\n", out)
}

func TestPrintFull(t *testing.T) {
	out := captureStdout(t, PrintFull)
	assert.Contains(t, out, "winforge unknown\n")
	assert.Contains(t, out, "branch:")
	assert.Contains(t, out, "revision:")
	assert.Contains(t, out, "build date:")
	assert.Contains(t, out, "go version:")
}
