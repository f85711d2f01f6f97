package crownconv

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts the intermediate representation for a single file to the feature map of
// a TensorFlow object detection example. All annotations are of category categoryName.
func toTFFeatures(fileData AnnotatedFile, categoryName string) (TFFeatureMap, error) {
	imgData, err := readFile(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileData.FilePath)), ".")
	if format == "jpg" {
		format = "jpeg"
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = fileData.Height
	f["image/width"] = fileData.Width
	f["image/filename"] = filepath.Base(fileData.FilePath)
	f["image/source_id"] = filepath.Base(fileData.FilePath)
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	w, h := float64(fileData.Width), float64(fileData.Height)
	for i, a := range fileData.Annotations {
		xmins[i] = float32(a.Bbox[0] / w)
		ymins[i] = float32(a.Bbox[1] / h)
		xmaxs[i] = float32((a.Bbox[0] + a.Bbox[2]) / w)
		ymaxs[i] = float32((a.Bbox[1] + a.Bbox[3]) / h)
		classes[i] = categoryName
		classIDs[i] = CategoryID
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// A label map for the single category is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data AnnotatedFiles, categoryName string,
		numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	if len(data) == 0 {
		// An empty split still gets an (empty) record file.
		if err := os.WriteFile(recordFilePath, nil, 0644); err != nil {
			return fmt.Errorf("failed to create %q: %v", recordFilePath, err)
		}
		return saveTFRecordLabelMap(labelMapPath, categoryName)
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return err
				}
				shardFile = nil
			}

			// Create the new shard file.
			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		// Convert the file data to an example.
		features, err := toTFFeatures(fileData, categoryName)
		if err != nil {
			log.Printf("Failed to convert %q: %v", fileData.FilePath, err)
			continue
		}
		tfExample := example.New(features)

		// Write the example.
		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", fileData.FilePath, err)
		}
	}

	return saveTFRecordLabelMap(labelMapPath, categoryName)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the label map for the single category to path, in the text format
// read by the TensorFlow object detection API.
func saveTFRecordLabelMap(path, categoryName string) error {
	labelMap := fmt.Sprintf("item {\n  id: %d\n  name: %q\n}\n", CategoryID, categoryName)
	if err := os.WriteFile(path, []byte(labelMap), 0644); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}
	return nil
}
