package hive

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubReg(t *testing.T, fn func(arguments ...string) (string, error)) *[][]string {
	t.Helper()
	var calls [][]string
	orig := regRun
	regRun = func(arguments ...string) (string, error) {
		calls = append(calls, arguments)
		if fn != nil {
			return fn(arguments...)
		}
		return "", nil
	}
	t.Cleanup(func() { regRun = orig })
	return &calls
}

func TestLoadUnload(t *testing.T) {
	calls := stubReg(t, nil)

	m := NewMounted(`C:\mount`)
	require.NoError(t, m.Load())
	assert.True(t, m.Loaded())

	require.Len(t, *calls, 3)
	assert.Equal(t, []string{"load", SoftwareKey, `C:\mount\Windows\System32\config\SOFTWARE`}, (*calls)[0])
	assert.Equal(t, []string{"load", SystemKey, `C:\mount\Windows\System32\config\SYSTEM`}, (*calls)[1])
	assert.Equal(t, []string{"load", DefaultUserKey, `C:\mount\Users\Default\NTUSER.DAT`}, (*calls)[2])

	require.NoError(t, m.Unload())
	assert.False(t, m.Loaded())

	// Unload happens in reverse load order.
	require.Len(t, *calls, 6)
	assert.Equal(t, []string{"unload", DefaultUserKey}, (*calls)[3])
	assert.Equal(t, []string{"unload", SystemKey}, (*calls)[4])
	assert.Equal(t, []string{"unload", SoftwareKey}, (*calls)[5])
}

func TestLoadFailureUnloadsPartialState(t *testing.T) {
	calls := stubReg(t, func(arguments ...string) (string, error) {
		if arguments[0] == "load" && arguments[1] == SystemKey {
			return "Access is denied.", errors.New("exit status 1")
		}
		return "", nil
	})

	m := NewMounted(`C:\mount`)
	err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), SystemKey)
	assert.False(t, m.Loaded())

	// The already-loaded SOFTWARE hive must have been unloaded again.
	var unloaded []string
	for _, call := range *calls {
		if call[0] == "unload" {
			unloaded = append(unloaded, call[1])
		}
	}
	assert.Equal(t, []string{SoftwareKey}, unloaded)
}

func TestUnloadContinuesPastFailures(t *testing.T) {
	stubReg(t, func(arguments ...string) (string, error) {
		if arguments[0] == "unload" && arguments[1] == SystemKey {
			return "", errors.New("hive busy")
		}
		return "", nil
	})

	m := NewMounted(`C:\mount`)
	require.NoError(t, m.Load())

	err := m.Unload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), SystemKey)
	// State resets even on failure so a retry starts clean.
	assert.False(t, m.Loaded())
}

func TestKey(t *testing.T) {
	assert.Equal(t, `HKLM\WF_SOFTWARE\Policies\Microsoft`, Key(SoftwareKey, `Policies\Microsoft`))
	assert.Equal(t, `HKLM\WF_SYSTEM\Setup\LabConfig`, Key(SystemKey, "Setup", "LabConfig"))
}

func TestTweakTables(t *testing.T) {
	all := DefaultTweaks()
	require.NotEmpty(t, all)

	for _, write := range all {
		prefixOK := strings.HasPrefix(write.Key, SoftwareKey) ||
			strings.HasPrefix(write.Key, SystemKey) ||
			strings.HasPrefix(write.Key, DefaultUserKey)
		assert.True(t, prefixOK, "write %s\\%s must target a loaded hive", write.Key, write.Name)
		assert.NotEmpty(t, write.Name)
		assert.Contains(t, []string{"REG_DWORD", "REG_SZ", "REG_EXPAND_SZ", "REG_MULTI_SZ"}, write.Type)
		assert.NotEmpty(t, write.Data)
	}
}

func TestLTSCTweaksSkipConsumerContent(t *testing.T) {
	for _, write := range LTSCTweaks() {
		assert.NotContains(t, write.Key, "ContentDeliveryManager",
			"LTSC set must not carry consumer-content writes")
	}
}

func TestBrowserInstallTweak(t *testing.T) {
	write := BrowserInstallTweak(`C:\Windows\Setup\Files\browser_setup.exe`)
	assert.Equal(t, Key(SoftwareKey, `Microsoft\Windows\CurrentVersion\RunOnce`), write.Key)
	assert.Equal(t, "REG_SZ", write.Type)
	assert.Contains(t, write.Data, "browser_setup.exe")
}
