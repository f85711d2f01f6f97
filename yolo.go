package crownconv

// YOLO specific functionality.

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// YOLOAnnotation is a single line of a YOLO label file. Coordinates are normalised ratios of the
// image size.
type YOLOAnnotation struct {
	Class   int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// parseYOLOAnnotation parses the whitespace-separated values of a single label line. Values
// after the fifth are ignored.
func parseYOLOAnnotation(line string) (YOLOAnnotation, error) {
	a := YOLOAnnotation{}

	tokens := strings.Fields(line)
	if len(tokens) < 5 {
		return a, fmt.Errorf("insufficient tokens in %q", line)
	}

	var err error
	if a.Class, err = strconv.Atoi(tokens[0]); err != nil {
		return a, fmt.Errorf("unexpected class in %q: %v", line, err)
	}
	coords := []*float64{&a.XCenter, &a.YCenter, &a.Width, &a.Height}
	for i, v := range coords {
		if *v, err = strconv.ParseFloat(tokens[i+1], 64); err != nil {
			return a, fmt.Errorf("unexpected values in %q: %v", line, err)
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return a, fmt.Errorf("non-finite value in %q", line)
		}
	}

	return a, nil
}

// YOLOToBbox converts normalised YOLO center coordinates to an absolute x, y, width, height
// bounding box for an image of imgWidth x imgHeight pixels.
//
// x and y are clamped to zero from below. The box is not clipped against the right and bottom
// image edges, see ClipBbox.
func YOLOToBbox(xCenter, yCenter, width, height, imgWidth, imgHeight float64) [4]float64 {
	xCenterPx := xCenter * imgWidth
	yCenterPx := yCenter * imgHeight
	wPx := width * imgWidth
	hPx := height * imgHeight

	xMin := xCenterPx - wPx/2
	yMin := yCenterPx - hPx/2

	return [4]float64{max(0, xMin), max(0, yMin), wPx, hPx}
}

// ClipBbox shrinks bbox so that it ends at the right and bottom image edges. It returns false if
// nothing of the box remains inside the image.
func ClipBbox(bbox [4]float64, imgWidth, imgHeight float64) ([4]float64, bool) {
	if bbox[0]+bbox[2] > imgWidth {
		bbox[2] = imgWidth - bbox[0]
	}
	if bbox[1]+bbox[3] > imgHeight {
		bbox[3] = imgHeight - bbox[1]
	}
	return bbox, bbox[2] > 0 && bbox[3] > 0
}

// FromYOLO reads the YOLO labels in cfg.LabelDir for the normalized images and returns the
// intermediate representation, one AnnotatedFile per image, in input order.
//
// The image dimensions are read from the normalized image in cfg.ImageOutDir; images that cannot
// be read are skipped. A missing label file yields a file without annotations. Lines that cannot
// be parsed or that are not of class cfg.ForegroundClass are dropped.
func FromYOLO(images []NormalizedImage, cfg Config) AnnotatedFiles {
	data := make(AnnotatedFiles, 0, len(images))
	for _, img := range images {
		imagePath := filepath.Join(cfg.ImageOutDir, img.FileName)
		imgConfig, _, err := decodeImageConfig(imagePath)
		if err != nil {
			log.Printf("Warning: cannot read image %q, skipping: %v", imagePath, err)
			continue
		}

		labelPath := filepath.Join(cfg.LabelDir, img.BaseName()+".txt")
		annotations, err := parseYOLOFile(labelPath, imgConfig.Width, imgConfig.Height, cfg)
		if err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: cannot read labels %q: %v", labelPath, err)
		}

		data = append(data, AnnotatedFile{
			Annotations: annotations,
			FilePath:    imagePath,
			Width:       imgConfig.Width,
			Height:      imgConfig.Height,
		})
	}

	return data
}

// parseYOLOFile parses the label file at path for an image of the given size.
func parseYOLOFile(path string, imgWidth, imgHeight int, cfg Config) ([]Annotation, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	w, h := float64(imgWidth), float64(imgHeight)
	annotations := make([]Annotation, 0, len(lines))
	for _, line := range lines {
		a, err := parseYOLOAnnotation(line)
		if err != nil || a.Class != cfg.ForegroundClass {
			continue
		}

		bbox := YOLOToBbox(a.XCenter, a.YCenter, a.Width, a.Height, w, h)
		if cfg.ClipToImage {
			var ok bool
			if bbox, ok = ClipBbox(bbox, w, h); !ok {
				continue
			}
		}
		annotations = append(annotations, Annotation{Class: a.Class, Bbox: bbox})
	}

	return annotations, nil
}
