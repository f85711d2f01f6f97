package crownconv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"

	"golang.org/x/image/vector"
)

// COCORLE is a run-length encoded binary mask. Runs alternate between background and foreground,
// starting with background, and traverse the mask in column-major order.
type COCORLE struct {
	Size   [2]int   // Height, width.
	Counts []uint32 // Run lengths.
}

type cocoRLEJSON struct {
	Size   [2]int          `json:"size"`
	Counts json.RawMessage `json:"counts"`
}

// MarshalJSON implements json.Marshaler. Counts are written uncompressed.
func (r COCORLE) MarshalJSON() ([]byte, error) {
	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cocoRLEJSON{Size: r.Size, Counts: counts})
}

// UnmarshalJSON implements json.Unmarshaler. Counts may be a list of integers or the compressed
// string form written by the COCO tools.
func (r *COCORLE) UnmarshalJSON(data []byte) error {
	var raw cocoRLEJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Size = raw.Size
	counts := bytes.TrimSpace(raw.Counts)
	if len(counts) > 0 && counts[0] == '"' {
		var s string
		if err := json.Unmarshal(counts, &s); err != nil {
			return err
		}
		var err error
		r.Counts, err = decodeRLECounts(s)
		return err
	}
	return json.Unmarshal(counts, &r.Counts)
}

// decodeRLECounts decodes the compressed string form of RLE counts. Each count is stored as a
// sequence of 5-bit groups offset by 48, with bit 0x20 marking continuation and bit 0x10 of the
// last group carrying the sign. From the third count on, values are deltas to the count two
// positions earlier.
func decodeRLECounts(s string) ([]uint32, error) {
	counts := make([]int64, 0, len(s))
	for p := 0; p < len(s); {
		var x int64
		for k, more := 0, true; more; k++ {
			if p >= len(s) {
				return nil, fmt.Errorf("truncated RLE counts %q", s)
			}
			c := int64(s[p]) - 48
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * (k + 1))
			}
		}
		if m := len(counts); m > 2 {
			x += counts[m-2]
		}
		counts = append(counts, x)
	}

	out := make([]uint32, len(counts))
	for i, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("negative run length in RLE counts %q", s)
		}
		out[i] = uint32(c)
	}
	return out, nil
}

// Mask renders the segmentation as an alpha mask of the given size. Foreground pixels are opaque;
// polygon edges may be partially covered.
func (s COCOSegmentation) Mask(width, height int) (*image.Alpha, error) {
	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	if s.RLE != nil {
		return mask, s.RLE.fill(mask)
	}

	if len(s.Polygons) == 0 || width == 0 || height == 0 {
		return mask, nil
	}
	z := vector.NewRasterizer(width, height)
	for _, poly := range s.Polygons {
		if len(poly) < 6 {
			continue
		}
		z.MoveTo(float32(poly[0]), float32(poly[1]))
		for i := 2; i+1 < len(poly); i += 2 {
			z.LineTo(float32(poly[i]), float32(poly[i+1]))
		}
		z.ClosePath()
	}
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	return mask, nil
}

// fill sets the foreground pixels of r in mask, which must have the size given by r.Size.
func (r *COCORLE) fill(mask *image.Alpha) error {
	h, w := r.Size[0], r.Size[1]
	if b := mask.Bounds(); b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("RLE size %dx%d does not match the image size %dx%d", w, h, b.Dx(), b.Dy())
	}

	idx, total := 0, w*h
	for i, n := range r.Counts {
		end := idx + int(n)
		if end > total {
			return fmt.Errorf("RLE counts exceed the mask size %dx%d", w, h)
		}
		if i%2 == 1 {
			for ; idx < end; idx++ {
				mask.Pix[(idx%h)*mask.Stride+idx/h] = 0xff
			}
		}
		idx = end
	}
	return nil
}
