package crownconv

// The intermediate annotation metadata representation.

import (
	"math/rand"
	"time"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Class int        // The source class index.
	Bbox  [4]float64 // Absolute x, y, width, height in pixels, (x, y) being the top-left corner.
}

// Width is the object width from a.Bbox.
func (a Annotation) Width() float64 {
	return a.Bbox[2]
}

// Height is the object height from a.Bbox.
func (a Annotation) Height() float64 {
	return a.Bbox[3]
}

// AnnotatedFile is the intermediate representation of file metadata.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated (normalized) image.
	Width       int          // The image width in pixels.
	Height      int          // The image height in pixels.
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// NumAnnotations returns the total number of annotations across all files.
func (data AnnotatedFiles) NumAnnotations() int {
	n := 0
	for _, f := range data {
		n += len(f.Annotations)
	}
	return n
}

// newRand returns the generator for dataset shuffles. A zero seed selects a clock-based seed, so
// that every run produces a different split.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// SplitNames shuffles a copy of names with rng and splits it into a training part holding the
// first int(len(names)*trainRatio) names and a validation part holding the rest.
//
// names is not modified.
func SplitNames(names []string, trainRatio float64, rng *rand.Rand) (train, val []string) {
	shuffled := make([]string, len(names))
	copy(shuffled, names)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	splitIdx := int(float64(len(shuffled)) * trainRatio)
	return shuffled[:splitIdx], shuffled[splitIdx:]
}
