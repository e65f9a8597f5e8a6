// pkg/branding/branding.go - wallpaper staging for customized images.
//
// The configured wallpaper is decoded (PNG, JPEG, or BMP), re-encoded as BMP
// for the legacy background consumers, and staged into the mounted image.
// The default-user registry write pointing at the staged file lives with the
// other tweaks.

package branding

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"

	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/parallel"
)

// StageDir is the wallpaper directory inside the image, relative to the
// mount root.
const StageDir = `Windows\Web\Wallpaper\WinForge`

// installedWallpaper is where the staged BMP lands on the installed system.
const installedWallpaper = `C:\Windows\Web\Wallpaper\WinForge\wallpaper.bmp`

// Load decodes a wallpaper file. The format is sniffed from content, not
// the extension.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wallpaper: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding wallpaper %s: %w", path, err)
	}
	logging.Debug("Wallpaper decoded", "path", path, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

// WriteBMP encodes an image as BMP at the given path.
func WriteBMP(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating wallpaper directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := bmp.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Apply stages the wallpaper into the mounted image: the BMP re-encode plus
// the original file alongside it.
func Apply(mountDir, wallpaperPath string) error {
	img, err := Load(wallpaperPath)
	if err != nil {
		return err
	}

	stage := filepath.Join(mountDir, StageDir)
	if err := WriteBMP(img, filepath.Join(stage, "wallpaper.bmp")); err != nil {
		return err
	}
	original := filepath.Join(stage, "wallpaper"+filepath.Ext(wallpaperPath))
	if err := copyFile(wallpaperPath, original); err != nil {
		return fmt.Errorf("staging original wallpaper: %w", err)
	}

	logging.Info("Wallpaper staged", "dir", stage)
	return nil
}

// WallpaperTweak points the default user profile at the staged wallpaper.
// The key path targets the loaded default-user hive.
func WallpaperTweak(defaultUserKey string) []parallel.RegistryWrite {
	desktop := defaultUserKey + `\Control Panel\Desktop`
	return []parallel.RegistryWrite{
		{Key: desktop, Name: "Wallpaper", Type: "REG_SZ", Data: installedWallpaper},
		{Key: desktop, Name: "WallpaperStyle", Type: "REG_SZ", Data: "10"},
	}
}
