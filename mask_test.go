package crownconv

import (
	"fmt"
	"testing"
)

func TestDecodeRLECounts(t *testing.T) {
	tests := []struct {
		in      string
		want    []uint32
		wantErr bool
	}{
		{"325OO", []uint32{3, 2, 5, 1, 4}, false},
		{"T3S1X6WOoIR9", []uint32{100, 35, 200, 10, 7, 300}, false},
		{"", []uint32{}, false},
		{"T", nil, true}, // Continuation bit set on the last group.
	}

	for _, tt := range tests {
		got, err := decodeRLECounts(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("decodeRLECounts(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("decodeRLECounts(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRLEMaskColumnMajor(t *testing.T) {
	// 3 rows x 2 columns; runs: 1 background, 3 foreground, 2 background.
	seg := COCOSegmentation{RLE: &COCORLE{Size: [2]int{3, 2}, Counts: []uint32{1, 3, 2}}}
	mask, err := seg.Mask(2, 3)
	if err != nil {
		t.Fatalf("Mask() error = %v", err)
	}

	// Column 0 holds pixels 0..2, column 1 holds pixels 3..5.
	want := [3][2]bool{
		{false, true},
		{true, false},
		{true, false},
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			if got := mask.AlphaAt(x, y).A == 0xff; got != want[y][x] {
				t.Errorf("pixel (%d,%d) set = %v, want %v", x, y, got, want[y][x])
			}
		}
	}
}

func TestRLEMaskErrors(t *testing.T) {
	seg := COCOSegmentation{RLE: &COCORLE{Size: [2]int{3, 2}, Counts: []uint32{1, 3, 2}}}
	if _, err := seg.Mask(4, 4); err == nil {
		t.Error("Mask() accepted a size mismatch")
	}

	seg.RLE.Counts = []uint32{1, 30}
	if _, err := seg.Mask(2, 3); err == nil {
		t.Error("Mask() accepted counts exceeding the mask")
	}
}

func TestPolygonMask(t *testing.T) {
	seg, _ := PseudoMask([4]float64{2, 3, 4, 5})
	mask, err := seg.Mask(10, 10)
	if err != nil {
		t.Fatalf("Mask() error = %v", err)
	}

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			inside := x >= 2 && x < 6 && y >= 3 && y < 8
			if got := mask.AlphaAt(x, y).A > 0x7f; got != inside {
				t.Errorf("pixel (%d,%d) set = %v, want %v", x, y, got, inside)
			}
		}
	}
}

func TestEmptySegmentationMask(t *testing.T) {
	mask, err := COCOSegmentation{}.Mask(4, 4)
	if err != nil {
		t.Fatalf("Mask() error = %v", err)
	}
	for _, a := range mask.Pix {
		if a != 0 {
			t.Fatal("empty segmentation produced foreground pixels")
		}
	}
}
