package drivers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	addCalls    [][3]interface{}
	exportDirs  []string
	err         error
	exportFiles []string
}

func (f *fakeTool) AddDrivers(mountDir, driverDir string, forceUnsigned bool) (string, error) {
	f.addCalls = append(f.addCalls, [3]interface{}{mountDir, driverDir, forceUnsigned})
	return "", f.err
}

func (f *fakeTool) ExportDrivers(destDir string) (string, error) {
	f.exportDirs = append(f.exportDirs, destDir)
	for _, name := range f.exportFiles {
		path := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			return "", err
		}
	}
	return "", f.err
}

func seedRepo(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return dir
}

func TestCountINFs(t *testing.T) {
	dir := seedRepo(t,
		filepath.Join("net", "e1000.inf"),
		filepath.Join("net", "e1000.sys"),
		filepath.Join("storage", "nvme", "stornvme.INF"),
		"readme.txt",
	)
	count, err := CountINFs(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInject(t *testing.T) {
	t.Run("AddsRecursively", func(t *testing.T) {
		dir := seedRepo(t, filepath.Join("net", "e1000.inf"))
		tool := &fakeTool{}
		require.NoError(t, Inject(tool, `C:\mount`, dir, true))
		require.Len(t, tool.addCalls, 1)
		assert.Equal(t, `C:\mount`, tool.addCalls[0][0])
		assert.Equal(t, dir, tool.addCalls[0][1])
		assert.Equal(t, true, tool.addCalls[0][2])
	})

	t.Run("EmptyRepositoryFails", func(t *testing.T) {
		dir := seedRepo(t, "readme.txt")
		tool := &fakeTool{}
		err := Inject(tool, `C:\mount`, dir, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no INF files")
		assert.Empty(t, tool.addCalls)
	})

	t.Run("ToolErrorPropagates", func(t *testing.T) {
		dir := seedRepo(t, "e1000.inf")
		tool := &fakeTool{err: errors.New("Error: 50")}
		require.Error(t, Inject(tool, `C:\mount`, dir, false))
	})
}

func TestExport(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "repo")
	tool := &fakeTool{exportFiles: []string{
		filepath.Join("e1000.inf_amd64_1", "e1000.inf"),
		filepath.Join("nvme.inf_amd64_2", "nvme.inf"),
	}}

	count, err := Export(tool, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{dest}, tool.exportDirs)
	assert.DirExists(t, dest)
}

func TestThirdParty(t *testing.T) {
	drivers := []SignedDriver{
		{DeviceName: "Intel(R) Ethernet Connection", Provider: "Intel", Class: "Net"},
		{DeviceName: "Generic USB Hub", Provider: "Microsoft", Class: "USB"},
		{DeviceName: "HID-compliant mouse", Provider: "Microsoft Corporation", Class: "Mouse"},
		{DeviceName: "NVIDIA GeForce RTX 4070", Provider: "NVIDIA", Class: "Display"},
	}

	third := ThirdParty(drivers)
	require.Len(t, third, 2)
	assert.Equal(t, "Intel", third[0].Provider)
	assert.Equal(t, "NVIDIA", third[1].Provider)
}

func TestSortDrivers(t *testing.T) {
	drivers := []SignedDriver{
		{DeviceName: "b", Class: "Net"},
		{DeviceName: "a", Class: "Net"},
		{DeviceName: "z", Class: "Display"},
	}
	sortDrivers(drivers)
	assert.Equal(t, "Display", drivers[0].Class)
	assert.Equal(t, "a", drivers[1].DeviceName)
	assert.Equal(t, "b", drivers[2].DeviceName)
}
