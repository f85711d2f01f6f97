package crownconv

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the options for a conversion run.
type Config struct {
	ImageDir    string `json:"image_dir"`     // The input directory with the source images.
	LabelDir    string `json:"label_dir"`     // The input directory with one YOLO .txt file per image.
	ImageOutDir string `json:"image_out_dir"` // The output directory for normalized images.
	TrainFile   string `json:"train_file"`    // The COCO output file for the training split.
	ValFile     string `json:"val_file"`      // The COCO output file for the validation split.

	TrainRatio      float64  `json:"train_ratio"`      // The share of images in the training split.
	Seed            int64    `json:"seed"`             // The shuffle seed; zero seeds from the clock.
	CategoryName    string   `json:"category_name"`    // The name of the single COCO category.
	ForegroundClass int      `json:"foreground_class"` // The YOLO class index that is kept.
	Extensions      []string `json:"extensions"`       // Accepted source image extensions.
	ClipToImage     bool     `json:"clip_to_image"`    // Clip boxes to the right and bottom edges.

	ImageEncoding      string `json:"image_encoding"`      // jpg, png or webp.
	JPEGQuality        int    `json:"jpeg_quality"`        // Quality for jpg and webp outputs.
	ResizeLonger       int    `json:"resize_longer"`       // Target length of the longer side.
	ResizeShorter      int    `json:"resize_shorter"`      // Target length of the shorter side.
	DownsamplingFilter string `json:"downsampling_filter"` // nearest, box, linear, gaussian, lanczos
	UpsamplingFilter   string `json:"upsampling_filter"`   // nearest, box, linear, gaussian, lanczos
	Workers            int    `json:"workers"`             // Images normalized in parallel; 1 is sequential.

	TFRecordTrain string `json:"tfrecord_train"` // Optional TFRecord output for the training split.
	TFRecordVal   string `json:"tfrecord_val"`   // Optional TFRecord output for the validation split.
	LabelMapFile  string `json:"label_map_file"` // The label map written with TFRecord outputs.
	NumShards     int    `json:"num_shards"`     // The number of TFRecord shard files per split.
}

// DefaultConfig returns the configuration for the standard directory layout.
func DefaultConfig() Config {
	return Config{
		ImageDir:           "images",
		LabelDir:           "labels",
		ImageOutDir:        "images_jpg",
		TrainFile:          "train.json",
		ValFile:            "val.json",
		TrainRatio:         0.8,
		CategoryName:       "tree",
		ForegroundClass:    0,
		Extensions:         []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"},
		ImageEncoding:      EncodingJPEG,
		JPEGQuality:        95,
		DownsamplingFilter: "box",
		UpsamplingFilter:   "linear",
		Workers:            1,
		LabelMapFile:       "label_map.pbtxt",
		NumShards:          1,
	}
}

// Validate checks the configuration and cleans its paths.
func (c *Config) Validate() error {
	if c.ImageDir == "" || c.LabelDir == "" || c.ImageOutDir == "" {
		return fmt.Errorf("missing image, label or image output directory")
	}
	if c.TrainFile == "" || c.ValFile == "" {
		return fmt.Errorf("missing train or validation output file")
	}
	if math.IsNaN(c.TrainRatio) || c.TrainRatio < 0 || c.TrainRatio > 1 {
		return fmt.Errorf("invalid train ratio %v, must be in [0, 1]", c.TrainRatio)
	}
	if c.CategoryName == "" {
		return fmt.Errorf("missing category name")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("no accepted image extensions")
	}
	exts := make([]string, len(c.Extensions))
	for i, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[i] = ext
	}
	c.Extensions = exts
	if _, err := encodingExt(c.ImageEncoding); err != nil {
		return err
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("invalid JPEG quality %d, must be in [1, 100]", c.JPEGQuality)
	}
	if c.ResizeLonger < 0 || c.ResizeShorter < 0 {
		return fmt.Errorf("invalid resize target %d/%d", c.ResizeLonger, c.ResizeShorter)
	}
	if _, err := resampleFilter(c.DownsamplingFilter); err != nil {
		return err
	}
	if _, err := resampleFilter(c.UpsamplingFilter); err != nil {
		return err
	}
	if (c.TFRecordTrain != "" || c.TFRecordVal != "") && c.LabelMapFile == "" {
		return fmt.Errorf("missing label map file for TFRecord output")
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	c.ImageDir = filepath.Clean(c.ImageDir)
	c.LabelDir = filepath.Clean(c.LabelDir)
	c.ImageOutDir = filepath.Clean(c.ImageOutDir)
	if c.ImageDir == c.ImageOutDir {
		return fmt.Errorf("the image input and output paths cannot be identical")
	}
	c.TrainFile = filepath.Clean(c.TrainFile)
	c.ValFile = filepath.Clean(c.ValFile)
	if c.TrainFile == c.ValFile {
		return fmt.Errorf("the train and validation output paths cannot be identical")
	}

	return nil
}

// LoadConfigFile overlays the JSON configuration file at path onto c. Keys missing from the file
// keep their current values.
func (c *Config) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %v", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %q: %v", path, err)
	}
	return nil
}

// EnvPrefix prefixes the environment variables read by ApplyEnv.
const EnvPrefix = "CROWNCONV_"

// ApplyEnv overrides fields of c with the CROWNCONV_* variables returned by getenv. Unset or empty
// variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	var err error
	num := func(key string, dst *int) {
		if v := getenv(EnvPrefix + key); v != "" && err == nil {
			if *dst, err = strconv.Atoi(v); err != nil {
				err = fmt.Errorf("invalid %s%s: %v", EnvPrefix, key, err)
			}
		}
	}

	str("IMAGES", &c.ImageDir)
	str("LABELS", &c.LabelDir)
	str("IMAGES_OUT", &c.ImageOutDir)
	str("TRAIN_FILE", &c.TrainFile)
	str("VAL_FILE", &c.ValFile)
	str("CATEGORY", &c.CategoryName)
	str("IMAGE_ENCODING", &c.ImageEncoding)
	num("JPEG_QUALITY", &c.JPEGQuality)
	num("FOREGROUND_CLASS", &c.ForegroundClass)
	num("WORKERS", &c.Workers)

	if v := getenv(EnvPrefix + "EXTENSIONS"); v != "" {
		c.Extensions = strings.Split(v, ",")
	}
	if v := getenv(EnvPrefix + "TRAIN_RATIO"); v != "" && err == nil {
		if c.TrainRatio, err = strconv.ParseFloat(v, 64); err != nil {
			err = fmt.Errorf("invalid %sTRAIN_RATIO: %v", EnvPrefix, err)
		}
	}
	if v := getenv(EnvPrefix + "SEED"); v != "" && err == nil {
		if c.Seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			err = fmt.Errorf("invalid %sSEED: %v", EnvPrefix, err)
		}
	}

	return err
}
