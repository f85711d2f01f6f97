package crownconv

// Rendering of detections produced by the external detector.

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/blend"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Errors for the preconditions of RenderPredictions. Both end the run.
var (
	ErrImageNotFound       = errors.New("input image not found")
	ErrPredictionsNotFound = errors.New("predictions not found")
)

// Prediction is a single detection in the COCO results layout.
type Prediction struct {
	ImageID      int               `json:"image_id"`
	CategoryID   int               `json:"category_id"`
	Bbox         [4]float64        `json:"bbox"` // x, y, width, height
	Score        float64           `json:"score"`
	Segmentation *COCOSegmentation `json:"segmentation,omitempty"`
}

// OverlayOptions controls how predictions are drawn.
type OverlayOptions struct {
	ScoreThreshold float64 // Predictions must score above this value to be drawn.
	ImageID        int     // Only draw predictions for this image id; negative draws all.
	Label          string  // The text drawn before the score.
	BoxColor       color.RGBA
	MaskColor      color.RGBA
	TextColor      color.RGBA
	MaskOpacity    float64 // In [0, 1].
	LineThickness  int
	JPEGQuality    int
}

// DefaultOverlayOptions returns green boxes and labels with red masks blended at 50%.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		ScoreThreshold: 0.5,
		ImageID:        -1,
		Label:          "Tree",
		BoxColor:       color.RGBA{0, 255, 0, 255},
		MaskColor:      color.RGBA{255, 0, 0, 255},
		TextColor:      color.RGBA{0, 255, 0, 255},
		MaskOpacity:    0.5,
		LineThickness:  2,
		JPEGQuality:    95,
	}
}

// ParseColor parses a hex color such as "#00ff00".
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %v", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// LoadPredictions reads a JSON list of predictions from path.
func LoadPredictions(path string) ([]Prediction, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var preds []Prediction
	if err := json.Unmarshal(enc, &preds); err != nil {
		return nil, fmt.Errorf("failed to parse predictions from %q: %v", path, err)
	}
	return preds, nil
}

// DrawPredictions draws the box, mask and score label of every prediction scoring above
// opts.ScoreThreshold onto a copy of img. It returns the copy and the number of predictions drawn.
//
// Masks are blended one prediction at a time, so overlapping masks accumulate.
func DrawPredictions(img image.Image, preds []Prediction, opts OverlayOptions) (*image.RGBA, int) {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	count := 0
	for _, p := range preds {
		if p.Score <= opts.ScoreThreshold || (opts.ImageID >= 0 && p.ImageID != opts.ImageID) {
			continue
		}

		x1, y1 := int(p.Bbox[0]), int(p.Bbox[1])
		x2, y2 := int(p.Bbox[0]+p.Bbox[2]), int(p.Bbox[1]+p.Bbox[3])
		drawRect(dst, image.Rect(x1, y1, x2, y2), opts.BoxColor, opts.LineThickness)

		if p.Segmentation != nil {
			mask, err := p.Segmentation.Mask(b.Dx(), b.Dy())
			if err != nil {
				log.Printf("Warning: cannot render mask: %v", err)
			} else {
				dst = blendMask(dst, mask, opts.MaskColor, opts.MaskOpacity)
			}
		}

		drawText(dst, fmt.Sprintf("%s %.2f", opts.Label, p.Score), image.Pt(x1, y1-10),
			opts.TextColor)
		count++
	}

	return dst, count
}

// drawRect draws the outline of r with the given line thickness.
func drawRect(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X+1, r.Min.Y+thickness),     // Top.
		image.Rect(r.Min.X, r.Max.Y-thickness+1, r.Max.X+1, r.Max.Y+1), // Bottom.
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y+1),     // Left.
		image.Rect(r.Max.X-thickness+1, r.Min.Y, r.Max.X+1, r.Max.Y+1), // Right.
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// blendMask blends c into the pixels of img covered by mask at the given opacity and returns img.
// Pixels outside the mask are unchanged.
func blendMask(img *image.RGBA, mask *image.Alpha, c color.RGBA, opacity float64) *image.RGBA {
	overlay := image.NewRGBA(img.Bounds())
	copy(overlay.Pix, img.Pix)

	b := mask.Bounds().Intersect(img.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A > 0x7f {
				overlay.SetRGBA(x, y, c)
			}
		}
	}

	// The blend rounds every channel down, so only masked pixels are taken from it.
	blended := blend.Opacity(img, overlay, opacity)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A > 0x7f {
				img.SetRGBA(x, y, blended.RGBAAt(x, y))
			}
		}
	}
	return img
}

// drawText draws s with its baseline starting at pt.
func drawText(dst draw.Image, s string, pt image.Point, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(s)
}

// RenderPredictions draws the predictions in predictionsPath onto the image at imagePath and
// writes the result to outPath, encoded according to its file extension. It returns the number
// of predictions drawn.
//
// A missing image or predictions file is reported as ErrImageNotFound or ErrPredictionsNotFound
// before anything is loaded.
func RenderPredictions(imagePath, predictionsPath, outPath string, opts OverlayOptions) (
		int, error) {

	if !fileExists(imagePath) {
		return 0, fmt.Errorf("%w: %q", ErrImageNotFound, imagePath)
	}
	if !fileExists(predictionsPath) {
		return 0, fmt.Errorf("%w: %q", ErrPredictionsNotFound, predictionsPath)
	}

	img, err := loadImage(imagePath)
	if err != nil {
		return 0, fmt.Errorf("cannot read image %q: %v", imagePath, err)
	}
	preds, err := LoadPredictions(predictionsPath)
	if err != nil {
		return 0, err
	}

	out, count := DrawPredictions(img, preds, opts)

	encoding := strings.TrimPrefix(strings.ToLower(filepath.Ext(outPath)), ".")
	if _, err := encodingExt(encoding); err != nil {
		encoding = EncodingJPEG
	}
	if err := saveImage(outPath, out, encoding, opts.JPEGQuality); err != nil {
		return 0, fmt.Errorf("cannot write %q: %v", outPath, err)
	}

	return count, nil
}
