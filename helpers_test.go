package crownconv

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// writeTestImage writes a width x height image filled with c to path, encoded according to the
// file extension of path.
func writeTestImage(t *testing.T, path string, width, height int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, nil)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// writeTestFile writes content to path.
func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// testConfig returns a config for a dataset layout under a fresh temporary directory, with the
// image and label directories created.
func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.ImageDir = filepath.Join(root, "images")
	cfg.LabelDir = filepath.Join(root, "labels")
	cfg.ImageOutDir = filepath.Join(root, "images_jpg")
	cfg.TrainFile = filepath.Join(root, "train.json")
	cfg.ValFile = filepath.Join(root, "val.json")
	cfg.Seed = 1

	for _, dir := range []string{cfg.ImageDir, cfg.LabelDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	return cfg
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
