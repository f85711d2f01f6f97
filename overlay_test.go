package crownconv

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#00ff00")
	if err != nil || c != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("ParseColor() = %v, %v, want green", c, err)
	}
	if _, err := ParseColor("green"); err == nil {
		t.Error("ParseColor() accepted a color name")
	}
}

func grayImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestDrawPredictions(t *testing.T) {
	img := grayImage(60, 60)
	mask, _ := PseudoMask([4]float64{20, 25, 10, 10})
	preds := []Prediction{
		{Bbox: [4]float64{10, 20, 30, 30}, Score: 0.9, Segmentation: &mask},
		{Bbox: [4]float64{0, 0, 5, 5}, Score: 0.5}, // Not above the threshold.
	}
	opts := DefaultOverlayOptions()

	out, count := DrawPredictions(img, preds, opts)
	if count != 1 {
		t.Errorf("DrawPredictions() drew %d predictions, want 1", count)
	}

	// Box outline.
	if c := out.RGBAAt(25, 20); c != opts.BoxColor {
		t.Errorf("top edge pixel = %v, want %v", c, opts.BoxColor)
	}
	if c := out.RGBAAt(10, 35); c != opts.BoxColor {
		t.Errorf("left edge pixel = %v, want %v", c, opts.BoxColor)
	}

	// Mask blended 50% with red.
	c := out.RGBAAt(25, 30)
	if c.R < 170 || c.R > 180 || c.G < 45 || c.G > 55 || c.B < 45 || c.B > 55 {
		t.Errorf("mask pixel = %v, want about (177, 50, 50)", c)
	}

	// Untouched background, including the skipped prediction's area.
	for _, pt := range []image.Point{{50, 50}, {2, 2}, {15, 30}} {
		if c := out.RGBAAt(pt.X, pt.Y); c != (color.RGBA{100, 100, 100, 255}) {
			t.Errorf("pixel %v = %v, want unchanged", pt, c)
		}
	}

	// The input is not modified.
	if c := img.RGBAAt(25, 20); c != (color.RGBA{100, 100, 100, 255}) {
		t.Errorf("input modified: %v", c)
	}
}

func TestDrawPredictionsImageFilter(t *testing.T) {
	preds := []Prediction{
		{ImageID: 1, Bbox: [4]float64{1, 1, 5, 5}, Score: 0.9},
		{ImageID: 2, Bbox: [4]float64{1, 1, 5, 5}, Score: 0.9},
		{ImageID: 2, Bbox: [4]float64{1, 1, 5, 5}, Score: 0.8},
	}
	opts := DefaultOverlayOptions()
	opts.ImageID = 2

	if _, count := DrawPredictions(grayImage(10, 10), preds, opts); count != 2 {
		t.Errorf("DrawPredictions() drew %d predictions, want 2", count)
	}
}

func TestRenderPredictions(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "94.jpg")
	predsPath := filepath.Join(dir, "predictions.json")
	outPath := filepath.Join(dir, "prediction_result.jpg")

	writeTestImage(t, imagePath, 50, 40, color.White)
	writeTestFile(t, predsPath, `[
		{"image_id": 0, "category_id": 1, "bbox": [5, 5, 20, 20], "score": 0.97,
		 "segmentation": {"size": [40, 50], "counts": [210, 10, 30, 10]}},
		{"image_id": 0, "category_id": 1, "bbox": [30, 10, 10, 10], "score": 0.2}
	]`)

	count, err := RenderPredictions(imagePath, predsPath, outPath, DefaultOverlayOptions())
	if err != nil {
		t.Fatalf("RenderPredictions() error = %v", err)
	}
	if count != 1 {
		t.Errorf("RenderPredictions() drew %d predictions, want 1", count)
	}

	imgCfg, format, err := decodeImageConfig(outPath)
	if err != nil {
		t.Fatalf("cannot read the result: %v", err)
	}
	if format != "jpeg" || imgCfg.Width != 50 || imgCfg.Height != 40 {
		t.Errorf("result is a %dx%d %s, want a 50x40 jpeg", imgCfg.Width, imgCfg.Height, format)
	}
}

func TestRenderPredictionsPreconditions(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "94.jpg")
	predsPath := filepath.Join(dir, "predictions.json")
	outPath := filepath.Join(dir, "out.jpg")

	_, err := RenderPredictions(imagePath, predsPath, outPath, DefaultOverlayOptions())
	if !errors.Is(err, ErrImageNotFound) {
		t.Errorf("missing image: error = %v, want ErrImageNotFound", err)
	}

	writeTestImage(t, imagePath, 10, 10, color.White)
	_, err = RenderPredictions(imagePath, predsPath, outPath, DefaultOverlayOptions())
	if !errors.Is(err, ErrPredictionsNotFound) {
		t.Errorf("missing predictions: error = %v, want ErrPredictionsNotFound", err)
	}
	if fileExists(outPath) {
		t.Error("output written although a precondition failed")
	}

	writeTestFile(t, predsPath, `{"not": "a list"}`)
	if _, err := RenderPredictions(imagePath, predsPath, outPath, DefaultOverlayOptions()); err == nil {
		t.Error("RenderPredictions() accepted malformed predictions")
	}
}
