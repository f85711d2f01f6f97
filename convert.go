package crownconv

import (
	"fmt"
	"log"
)

// Split is one output dataset of a conversion run.
type Split struct {
	Name    string      // "train" or "val".
	Sources []string    // Source image file names, in output order.
	COCO    COCODataset // The document written to the split's output file.
	Summary Summary
}

// Result describes a completed conversion run.
type Result struct {
	Images []NormalizedImage
	Train  Split
	Val    Split
}

// Convert normalizes the images in cfg.ImageDir, randomly splits them into a training and a
// validation set and writes a COCO document for each, with one rectangular pseudo-mask annotation
// per foreground YOLO label.
//
// The split is made on source images, so an image and all of its annotations always end up in the
// same document. Files that cannot be read are skipped; only configuration and output errors are
// returned.
func Convert(cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	images, err := NormalizeImages(cfg)
	if err != nil {
		return nil, err
	}

	bySource := make(map[string]NormalizedImage, len(images))
	sources := make([]string, len(images))
	for i, img := range images {
		bySource[img.Source] = img
		sources[i] = img.Source
	}

	trainSources, valSources := SplitNames(sources, cfg.TrainRatio, newRand(cfg.Seed))
	log.Printf("Split %d images into %d training and %d validation images",
		len(sources), len(trainSources), len(valSources))

	result := &Result{
		Images: images,
		Train:  Split{Name: "train", Sources: trainSources},
		Val:    Split{Name: "val", Sources: valSources},
	}
	outputs := []struct {
		split      *Split
		cocoPath   string
		recordPath string
	}{
		{&result.Train, cfg.TrainFile, cfg.TFRecordTrain},
		{&result.Val, cfg.ValFile, cfg.TFRecordVal},
	}

	for _, out := range outputs {
		splitImages := make([]NormalizedImage, len(out.split.Sources))
		for i, src := range out.split.Sources {
			splitImages[i] = bySource[src]
		}

		data := FromYOLO(splitImages, cfg)
		out.split.COCO = ToCOCO(data, cfg.CategoryName)
		out.split.Summary = Summarize(out.split.COCO)
		if err := WriteCOCO(out.cocoPath, out.split.COCO); err != nil {
			return nil, fmt.Errorf("failed to write the %s split: %v", out.split.Name, err)
		}
		log.Printf("Wrote %d images and %d annotations to %s", len(out.split.COCO.Images),
			len(out.split.COCO.Annotations), out.cocoPath)
		log.Printf("Box areas in %s: %v", out.cocoPath, out.split.Summary.BoxArea)

		if out.recordPath != "" {
			err := WriteTFRecord(out.recordPath, cfg.LabelMapFile, data, cfg.CategoryName,
				cfg.NumShards)
			if err != nil {
				return nil, fmt.Errorf("failed to write the %s TFRecord: %v", out.split.Name, err)
			}
			log.Printf("Wrote %d examples to %s", len(data), out.recordPath)
		}
	}

	return result, nil
}
