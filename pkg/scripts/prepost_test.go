package scripts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/winforge/pkg/config"
)

func TestHandleFailure(t *testing.T) {
	boom := errors.New("script exited 1")

	assert.NoError(t, handleFailure(nil, "abort"))
	assert.NoError(t, handleFailure(boom, "continue"))
	assert.NoError(t, handleFailure(boom, "Continue"))
	assert.NoError(t, handleFailure(boom, "warn"))
	assert.NoError(t, handleFailure(boom, "Warn"))
	assert.Error(t, handleFailure(boom, "abort"))
	assert.Error(t, handleFailure(boom, ""))
	assert.Error(t, handleFailure(boom, "retry"))
}

func TestRunPrebuildMissingScriptIsNoOp(t *testing.T) {
	cfg := &config.Configuration{
		ScratchPath:           t.TempDir(),
		PreBuildFailureAction: "abort",
	}
	require.NoError(t, RunPrebuild(cfg, `C:\mount`))
}

func TestRunPostbuildMissingScriptIsNoOp(t *testing.T) {
	cfg := &config.Configuration{
		ScratchPath:            t.TempDir(),
		PostBuildFailureAction: "abort",
	}
	require.NoError(t, RunPostbuild(cfg, `C:\mount`))
}
