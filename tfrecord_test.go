package crownconv

import (
	"encoding/binary"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// readRecords returns the payloads of the TFRecord file at path.
func readRecords(t *testing.T, path string) [][]byte {
	t.Helper()
	enc, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cannot read %s: %v", path, err)
	}

	var records [][]byte
	for len(enc) > 0 {
		if len(enc) < 12 {
			t.Fatalf("%s: truncated record header", path)
		}
		n := int(binary.LittleEndian.Uint64(enc))
		if len(enc) < 12+n+4 {
			t.Fatalf("%s: truncated record", path)
		}
		records = append(records, enc[12:12+n])
		enc = enc[12+n+4:]
	}
	return records
}

func testAnnotatedFiles(t *testing.T, dir string, n int) AnnotatedFiles {
	t.Helper()
	var data AnnotatedFiles
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, string(rune('a'+i))+".jpg")
		writeTestImage(t, path, 40, 20, color.White)
		data = append(data, AnnotatedFile{
			FilePath: path,
			Width:    40,
			Height:   20,
			Annotations: []Annotation{
				{Bbox: [4]float64{4, 2, 20, 10}},
				{Bbox: [4]float64{0, 0, 40, 20}},
			},
		})
	}
	return data
}

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	data := testAnnotatedFiles(t, dir, 2)
	recordPath := filepath.Join(dir, "train.record")
	labelMapPath := filepath.Join(dir, "label_map.pbtxt")

	if err := WriteTFRecord(recordPath, labelMapPath, data, "tree", 1); err != nil {
		t.Fatalf("WriteTFRecord() error = %v", err)
	}

	records := readRecords(t, recordPath)
	if len(records) != 2 {
		t.Fatalf("found %d records, want 2", len(records))
	}

	var e tensorflow.Example
	if err := proto.Unmarshal(records[0], &e); err != nil {
		t.Fatalf("cannot parse example: %v", err)
	}
	features := e.GetFeatures().GetFeature()
	if w := features["image/width"].GetInt64List().Value; len(w) != 1 || w[0] != 40 {
		t.Errorf("image/width = %v, want [40]", w)
	}
	xmin := features["image/object/bbox/xmin"].GetFloatList().Value
	if len(xmin) != 2 || xmin[0] != 0.1 || xmin[1] != 0 {
		t.Errorf("image/object/bbox/xmin = %v, want [0.1 0]", xmin)
	}
	ymax := features["image/object/bbox/ymax"].GetFloatList().Value
	if len(ymax) != 2 || ymax[0] != 0.6 || ymax[1] != 1 {
		t.Errorf("image/object/bbox/ymax = %v, want [0.6 1]", ymax)
	}
	if ids := features["image/object/class/label"].GetInt64List().Value; len(ids) != 2 || ids[0] != 1 {
		t.Errorf("image/object/class/label = %v, want [1 1]", ids)
	}

	labelMap, err := os.ReadFile(labelMapPath)
	if err != nil {
		t.Fatal(err)
	}
	if want := "item {\n  id: 1\n  name: \"tree\"\n}\n"; string(labelMap) != want {
		t.Errorf("label map = %q, want %q", labelMap, want)
	}
}

func TestWriteTFRecordShards(t *testing.T) {
	dir := t.TempDir()
	data := testAnnotatedFiles(t, dir, 3)
	recordPath := filepath.Join(dir, "train.record")

	if err := WriteTFRecord(recordPath, filepath.Join(dir, "label_map.pbtxt"), data, "tree", 2); err != nil {
		t.Fatalf("WriteTFRecord() error = %v", err)
	}

	want := map[string]int{"-00000-of-00002": 2, "-00001-of-00002": 1}
	for suffix, n := range want {
		if got := len(readRecords(t, recordPath+suffix)); got != n {
			t.Errorf("shard %s holds %d records, want %d", suffix, got, n)
		}
	}
	if fileExists(recordPath) {
		t.Error("unsharded record file written")
	}
}

func TestWriteTFRecordEmpty(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "val.record")

	if err := WriteTFRecord(recordPath, filepath.Join(dir, "label_map.pbtxt"), nil, "tree", 1); err != nil {
		t.Fatalf("WriteTFRecord() error = %v", err)
	}
	if records := readRecords(t, recordPath); len(records) != 0 {
		t.Errorf("found %d records, want none", len(records))
	}
}

func TestToTFFeaturesMissingImage(t *testing.T) {
	_, err := toTFFeatures(AnnotatedFile{FilePath: filepath.Join(t.TempDir(), "x.jpg")}, "tree")
	if err == nil || !strings.Contains(err.Error(), "read the image") {
		t.Errorf("toTFFeatures() error = %v, want a read failure", err)
	}
}
