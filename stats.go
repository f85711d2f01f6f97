package crownconv

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Distribution summarises a sample of values.
type Distribution struct {
	Mean   float64
	StdDev float64
	Median float64
	Min    float64
	Max    float64
}

func (d Distribution) String() string {
	return fmt.Sprintf("mean %.1f, std %.1f, median %.1f, range [%.1f, %.1f]",
		d.Mean, d.StdDev, d.Median, d.Min, d.Max)
}

// Summary describes the contents of a COCO dataset.
type Summary struct {
	NumImages         int
	NumAnnotations    int
	NumEmptyImages    int // Images without any annotation.
	AnnotationsPerImg Distribution
	BoxWidth          Distribution
	BoxHeight         Distribution
	BoxArea           Distribution
}

// Summarize computes the Summary of data.
func Summarize(data COCODataset) Summary {
	s := Summary{
		NumImages:      len(data.Images),
		NumAnnotations: len(data.Annotations),
	}

	perImage := make(map[int]int, len(data.Images))
	widths := make([]float64, 0, len(data.Annotations))
	heights := make([]float64, 0, len(data.Annotations))
	areas := make([]float64, 0, len(data.Annotations))
	for _, a := range data.Annotations {
		perImage[a.ImageID]++
		widths = append(widths, a.Bbox[2])
		heights = append(heights, a.Bbox[3])
		areas = append(areas, a.Area)
	}

	counts := make([]float64, 0, len(data.Images))
	for _, img := range data.Images {
		n := perImage[img.ID]
		if n == 0 {
			s.NumEmptyImages++
		}
		counts = append(counts, float64(n))
	}

	s.AnnotationsPerImg = distribution(counts)
	s.BoxWidth = distribution(widths)
	s.BoxHeight = distribution(heights)
	s.BoxArea = distribution(areas)
	return s
}

// distribution sorts x in place and summarises it. An empty sample yields the zero value.
func distribution(x []float64) Distribution {
	if len(x) == 0 {
		return Distribution{}
	}
	sort.Float64s(x)

	d := Distribution{
		Median: stat.Quantile(0.5, stat.Empirical, x, nil),
		Min:    x[0],
		Max:    x[len(x)-1],
	}
	d.Mean, d.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		d.StdDev = 0
	}
	return d
}
