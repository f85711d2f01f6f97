package crownconv

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// NormalizedImage maps a source image file name to the file name of its normalized copy.
type NormalizedImage struct {
	Source   string // e.g. "94.png"
	FileName string // e.g. "94.jpg"
}

// BaseName is the source file name without its extension, which is also the label file name
// without ".txt".
func (n NormalizedImage) BaseName() string {
	return n.Source[:len(n.Source)-len(filepath.Ext(n.Source))]
}

// NormalizeImages re-encodes every image in cfg.ImageDir with an accepted extension into
// cfg.ImageOutDir using cfg.ImageEncoding, creating the output directory if needed.
//
// Images whose output file already exists are not re-encoded. Images that cannot be decoded or
// written are logged and skipped. Sources sharing a base name are tried in order until one of
// them produces the output, which the later ones then reuse. The returned list is sorted by
// source file name.
//
// Images are processed sequentially unless cfg.Workers is greater than one.
func NormalizeImages(cfg Config) ([]NormalizedImage, error) {
	if err := os.MkdirAll(cfg.ImageOutDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create output directory %q: %v", cfg.ImageOutDir, err)
	}

	names, err := filesByExtInDir(cfg.ImageDir, cfg.Extensions)
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d images in %q", len(names), cfg.ImageDir)

	fileExt, err := encodingExt(cfg.ImageEncoding)
	if err != nil {
		return nil, err
	}
	downsample, err := resampleFilter(cfg.DownsamplingFilter)
	if err != nil {
		return nil, err
	}
	upsample, err := resampleFilter(cfg.UpsamplingFilter)
	if err != nil {
		return nil, err
	}

	// Group the sources by output name. Groups never share an output file.
	candidates := make([]NormalizedImage, len(names))
	outputs := make(map[string]int, len(names)) // output name -> group index
	var groups [][]int
	for i, name := range names {
		n := NormalizedImage{Source: name}
		n.FileName = n.BaseName() + fileExt
		candidates[i] = n
		if g, ok := outputs[n.FileName]; ok {
			log.Printf("Warning: %q and %q both normalize to %q",
				names[groups[g][0]], name, n.FileName)
			groups[g] = append(groups[g], i)
			continue
		}
		outputs[n.FileName] = len(groups)
		groups = append(groups, []int{i})
	}

	ok := make([]bool, len(candidates))
	var numEncoded int64
	processGroup := func(group []int) {
		for _, idx := range group {
			encoded, err := normalizeImage(candidates[idx], cfg, downsample, upsample)
			if err != nil {
				log.Printf("Warning: %v, skipping", err)
				continue
			}
			ok[idx] = true
			if encoded {
				atomic.AddInt64(&numEncoded, 1)
			}
		}
	}

	numTasks := cfg.Workers
	if len(groups) < numTasks {
		numTasks = len(groups)
	}
	if numTasks <= 1 {
		for _, group := range groups {
			processGroup(group)
		}
	} else {
		// Limit the number of goroutines in flight, as they load potentially large images into
		// memory.
		workQueue := make(chan []int, 2*numTasks)
		var wg sync.WaitGroup
		wg.Add(numTasks)
		for i := 0; i < numTasks; i++ {
			go func() {
				defer wg.Done()
				for group := range workQueue {
					processGroup(group)
				}
			}()
		}

		// Feed the work queue.
		for _, group := range groups {
			workQueue <- group
		}
		close(workQueue)
		wg.Wait()
	}

	images := make([]NormalizedImage, 0, len(candidates))
	for i, n := range candidates {
		if ok[i] {
			images = append(images, n)
		}
	}

	log.Printf("Normalized %d images into %q (%d newly encoded)",
		len(images), cfg.ImageOutDir, numEncoded)
	return images, nil
}

// normalizeImage writes the normalized copy of n unless it already exists. It reports whether the
// image was encoded.
func normalizeImage(n NormalizedImage, cfg Config, downsample, upsample imaging.ResampleFilter) (
		bool, error) {

	outPath := filepath.Join(cfg.ImageOutDir, n.FileName)
	if fileExists(outPath) {
		return false, nil
	}

	img, err := loadImage(filepath.Join(cfg.ImageDir, n.Source))
	if err != nil {
		return false, fmt.Errorf("cannot read image %q: %v", n.Source, err)
	}
	if cfg.ResizeLonger > 0 || cfg.ResizeShorter > 0 {
		img = resizeImage(img, cfg.ResizeLonger, cfg.ResizeShorter, downsample, upsample)
	}

	if err := saveImage(outPath, dropAlpha(img), cfg.ImageEncoding, cfg.JPEGQuality); err != nil {
		return false, fmt.Errorf("cannot write image %q: %v", outPath, err)
	}
	return true, nil
}
