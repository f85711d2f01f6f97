// Prepares tree crown datasets for Mask R-CNN training: converts YOLO box labels into COCO
// train/val documents with rectangular pseudo-masks, and renders detector predictions.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sensorable/crownconv"
)

func usage() {
	name := filepath.Base(os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", name)
	_, _ = fmt.Fprintf(os.Stderr, "  %s convert [options]\tConvert YOLO labels to COCO train/val files\n", name)
	_, _ = fmt.Fprintf(os.Stderr, "  %s overlay [options]\tDraw predictions onto an image\n", name)
	_, _ = fmt.Fprintf(os.Stderr, "  %s stats <coco.json>...\tSummarise COCO files\n", name)
	_, _ = fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for the command options.\n", name)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "convert":
		err = runConvert(args)
	case "overlay":
		err = runOverlay(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		usage()
		log.Fatalf("Unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig builds the conversion config from the defaults, an optional JSON file, the
// environment (including an optional .env file) and finally the command line.
func loadConfig(args []string) (crownconv.Config, error) {
	cfg := crownconv.DefaultConfig()

	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	fs.String("config", "", "The JSON config file `path`")
	fs.String("env", ".env", "The `path` to an optional file with CROWNCONV_* variables")

	// The config file and environment sit below the remaining flags, so they are applied first.
	if path := lookupFlag(args, "config"); path != "" {
		if err := cfg.LoadConfigFile(path); err != nil {
			return cfg, err
		}
	}
	envPath := lookupFlag(args, "env")
	if err := godotenv.Load(orDefault(envPath, ".env")); err == nil {
		log.Printf("Loaded environment from %q", orDefault(envPath, ".env"))
	} else if envPath != "" || !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load %q: %v", envPath, err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}

	// Path arguments.
	fs.StringVar(&cfg.ImageDir, "images", cfg.ImageDir, "The `path` to the image input directory")
	fs.StringVar(&cfg.LabelDir, "labels", cfg.LabelDir, "The `path` to the YOLO label directory")
	fs.StringVar(&cfg.ImageOutDir, "images-out", cfg.ImageOutDir,
		"The `path` to the directory for normalized images")
	fs.StringVar(&cfg.TrainFile, "train-out", cfg.TrainFile, "The COCO training output file `path`")
	fs.StringVar(&cfg.ValFile, "val-out", cfg.ValFile, "The COCO validation output file `path`")

	// Dataset arguments.
	fs.Float64Var(&cfg.TrainRatio, "train-ratio", cfg.TrainRatio,
		"The share of images in the training split [0.0, 1.0]")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed,
		"The shuffle `seed` for the split (zero picks a new seed on every run)")
	fs.StringVar(&cfg.CategoryName, "category", cfg.CategoryName, "The COCO category `name`")
	fs.IntVar(&cfg.ForegroundClass, "class", cfg.ForegroundClass,
		"The YOLO class `index` to keep; other classes are dropped")
	exts := fs.String("extensions", strings.Join(cfg.Extensions, ","),
		"Comma-separated list of accepted image file extensions")
	fs.BoolVar(&cfg.ClipToImage, "clip", cfg.ClipToImage,
		"Clip bounding boxes to the right and bottom image edges")

	// Image processing arguments.
	fs.StringVar(&cfg.ImageEncoding, "image-enc", cfg.ImageEncoding,
		"The `encoding` for normalized images {jpg, png, webp}")
	fs.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality,
		"The quality to use when encoding JPEG and WebP images [1, 100]")
	fs.IntVar(&cfg.ResizeLonger, "resize-longer", cfg.ResizeLonger,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	fs.IntVar(&cfg.ResizeShorter, "resize-shorter", cfg.ResizeShorter,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	fs.StringVar(&cfg.DownsamplingFilter, "downsample-filter", cfg.DownsamplingFilter,
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	fs.StringVar(&cfg.UpsamplingFilter, "upsample-filter", cfg.UpsamplingFilter,
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers,
		"The number of images to normalize in parallel (1 processes them one at a time)")

	// TFRecord arguments.
	fs.StringVar(&cfg.TFRecordTrain, "tfrecord-train", cfg.TFRecordTrain,
		"Optional TFRecord output `path` for the training split")
	fs.StringVar(&cfg.TFRecordVal, "tfrecord-val", cfg.TFRecordVal,
		"Optional TFRecord output `path` for the validation split")
	fs.StringVar(&cfg.LabelMapFile, "tfrecord-label-map-file", cfg.LabelMapFile,
		"The TFRecord label map file `path`")
	fs.IntVar(&cfg.NumShards, "num-shards", cfg.NumShards,
		"The number of shard files to create per TFRecord output")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.Extensions = strings.Split(*exts, ",")

	return cfg, cfg.Validate()
}

// lookupFlag returns the value of flag -name (or --name) in args, or "" if it is not set.
func lookupFlag(args []string, name string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		if !strings.HasPrefix(a, "-") {
			continue
		}
		a = strings.TrimPrefix(strings.TrimPrefix(a, "-"), "-")
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, name+"=") {
			return a[len(name)+1:]
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func runConvert(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	result, err := crownconv.Convert(cfg)
	if err != nil {
		return fmt.Errorf("conversion failed: %v", err)
	}

	log.Printf("Use %q as the image directory for training (%d images, %d train, %d val)",
		cfg.ImageOutDir, len(result.Images), len(result.Train.COCO.Images),
		len(result.Val.COCO.Images))
	return nil
}

func runOverlay(args []string) error {
	opts := crownconv.DefaultOverlayOptions()

	fs := flag.NewFlagSet("overlay", flag.ExitOnError)
	imagePath := fs.String("image", "images_jpg/94.jpg", "The input image `path`")
	predsPath := fs.String("predictions", "predictions.json",
		"The `path` to the detector output (COCO results JSON)")
	outPath := fs.String("out", "prediction_result.jpg", "The output image `path`")
	fs.Float64Var(&opts.ScoreThreshold, "min-score", opts.ScoreThreshold,
		"Only draw predictions scoring above this value")
	fs.IntVar(&opts.ImageID, "image-id", opts.ImageID,
		"Only draw predictions for this image id (negative draws all)")
	fs.StringVar(&opts.Label, "label", opts.Label, "The label text drawn before the score")
	boxColor := fs.String("box-color", "#00ff00", "The box and label `color`")
	maskColor := fs.String("mask-color", "#ff0000", "The mask `color`")
	fs.Float64Var(&opts.MaskOpacity, "mask-opacity", opts.MaskOpacity, "The mask opacity [0.0, 1.0]")
	fs.IntVar(&opts.LineThickness, "thickness", opts.LineThickness, "The box line thickness")
	fs.IntVar(&opts.JPEGQuality, "jpeg-quality", opts.JPEGQuality, "The JPEG output quality")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if opts.BoxColor, err = crownconv.ParseColor(*boxColor); err != nil {
		return err
	}
	opts.TextColor = opts.BoxColor
	if opts.MaskColor, err = crownconv.ParseColor(*maskColor); err != nil {
		return err
	}

	count, err := crownconv.RenderPredictions(*imagePath, *predsPath, *outPath, opts)
	if errors.Is(err, crownconv.ErrImageNotFound) || errors.Is(err, crownconv.ErrPredictionsNotFound) {
		return fmt.Errorf("error: %v", err)
	} else if err != nil {
		return fmt.Errorf("rendering failed: %v", err)
	}

	log.Printf("Drew %d predictions (score > %.2f), result saved to %s",
		count, opts.ScoreThreshold, *outPath)
	return nil
}

func runStats(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing COCO file argument")
	}

	for _, path := range args {
		data, err := crownconv.ReadCOCO(path)
		if err != nil {
			return err
		}
		s := crownconv.Summarize(data)
		fmt.Printf("%s:\n", path)
		fmt.Printf("  images:      %d (%d without annotations)\n", s.NumImages, s.NumEmptyImages)
		fmt.Printf("  annotations: %d\n", s.NumAnnotations)
		fmt.Printf("  per image:   %v\n", s.AnnotationsPerImg)
		fmt.Printf("  box width:   %v\n", s.BoxWidth)
		fmt.Printf("  box height:  %v\n", s.BoxHeight)
		fmt.Printf("  box area:    %v\n", s.BoxArea)
	}
	return nil
}
