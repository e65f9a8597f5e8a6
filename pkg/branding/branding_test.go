package branding

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/image/bmp"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(100 * y), B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.png")
	writePNG(t, path)

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestWriteBMPRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "wall.png")
	writePNG(t, src)
	img, err := Load(src)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "wall.bmp")
	require.NoError(t, WriteBMP(img, out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := bmp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestApply(t *testing.T) {
	wallpaper := filepath.Join(t.TempDir(), "corp.png")
	writePNG(t, wallpaper)
	mount := t.TempDir()

	require.NoError(t, Apply(mount, wallpaper))

	stage := filepath.Join(mount, StageDir)
	assert.FileExists(t, filepath.Join(stage, "wallpaper.bmp"))
	assert.FileExists(t, filepath.Join(stage, "wallpaper.png"))
}

func TestWallpaperTweak(t *testing.T) {
	writes := WallpaperTweak(`HKLM\WF_NTUSER`)
	require.Len(t, writes, 2)
	assert.Equal(t, `HKLM\WF_NTUSER\Control Panel\Desktop`, writes[0].Key)
	assert.Contains(t, writes[0].Data, "wallpaper.bmp")
}
