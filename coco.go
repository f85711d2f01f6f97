package crownconv

// COCO specific functionality.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CategoryID is the id of the single COCO category.
const CategoryID = 1

// COCOImage is an image record of a COCO dataset.
type COCOImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// COCOSegmentation is either a list of polygons (flat x, y lists) or a run-length encoded mask.
type COCOSegmentation struct {
	Polygons [][]float64
	RLE      *COCORLE
}

// MarshalJSON implements json.Marshaler.
func (s COCOSegmentation) MarshalJSON() ([]byte, error) {
	if s.RLE != nil {
		return json.Marshal(s.RLE)
	}
	if s.Polygons == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Polygons)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *COCOSegmentation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var rle COCORLE
		if err := json.Unmarshal(data, &rle); err != nil {
			return err
		}
		*s = COCOSegmentation{RLE: &rle}
		return nil
	}

	var polygons [][]float64
	if err := json.Unmarshal(data, &polygons); err != nil {
		return fmt.Errorf("segmentation is neither RLE nor polygons: %v", err)
	}
	*s = COCOSegmentation{Polygons: polygons}
	return nil
}

// COCOAnnotation is an object instance of a COCO dataset.
type COCOAnnotation struct {
	ID           int              `json:"id"`
	ImageID      int              `json:"image_id"`
	CategoryID   int              `json:"category_id"`
	Bbox         [4]float64       `json:"bbox"` // x, y, width, height
	Segmentation COCOSegmentation `json:"segmentation"`
	Area         float64          `json:"area"`
	IsCrowd      int              `json:"iscrowd"`
}

// COCOCategory is an object category of a COCO dataset.
type COCOCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// COCODataset is a COCO instance segmentation document.
type COCODataset struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// PseudoMask returns a rectangular polygon for the x, y, width, height bounding box, in the order
// top-left, top-right, bottom-right, bottom-left, together with the truncated box area.
//
// It stands in for an instance mask when only boxes are labelled.
func PseudoMask(bbox [4]float64) (COCOSegmentation, int64) {
	x, y, w, h := bbox[0], bbox[1], bbox[2], bbox[3]
	polygon := []float64{
		x, y,
		x + w, y,
		x + w, y + h,
		x, y + h,
	}
	return COCOSegmentation{Polygons: [][]float64{polygon}}, int64(w * h)
}

// ToCOCO converts the intermediate representation to a COCO dataset with a single category.
//
// Image and annotation ids are assigned sequentially from zero in the order of data.
func ToCOCO(data AnnotatedFiles, categoryName string) COCODataset {
	coco := COCODataset{
		Images:      make([]COCOImage, 0, len(data)),
		Annotations: make([]COCOAnnotation, 0, data.NumAnnotations()),
		Categories:  []COCOCategory{{ID: CategoryID, Name: categoryName}},
	}

	for imageID, fileData := range data {
		coco.Images = append(coco.Images, COCOImage{
			ID:       imageID,
			FileName: filepath.Base(fileData.FilePath),
			Width:    fileData.Width,
			Height:   fileData.Height,
		})

		for _, a := range fileData.Annotations {
			seg, area := PseudoMask(a.Bbox)
			coco.Annotations = append(coco.Annotations, COCOAnnotation{
				ID:           len(coco.Annotations),
				ImageID:      imageID,
				CategoryID:   CategoryID,
				Bbox:         a.Bbox,
				Segmentation: seg,
				Area:         float64(area),
				IsCrowd:      0,
			})
		}
	}

	return coco
}

// WriteCOCO writes the COCO dataset to outFile.
func WriteCOCO(outFile string, data COCODataset) error {
	enc, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", outFile, err)
	}
	return nil
}

// ReadCOCO reads and parses the COCO dataset at path.
func ReadCOCO(path string) (COCODataset, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return COCODataset{}, err
	}

	var data COCODataset
	if err := json.Unmarshal(enc, &data); err != nil {
		return COCODataset{}, fmt.Errorf("failed to parse COCO input from %q: %v", path, err)
	}
	return data, nil
}
