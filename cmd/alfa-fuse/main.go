// Command alfa-fuse runs ALFA late fusion over a dataset of per-detector
// detections and writes the fused detections as JSON. All algorithmic work
// lives in the fusion, runner, and detections packages; this binary is
// argument parsing and file plumbing only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/nvr-ai/go-fusion/detections"
	"github.com/nvr-ai/go-fusion/fusion"
	"github.com/nvr-ai/go-fusion/runner"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "JSON file with per-image, per-detector detections")
		paramsPath = flag.String("params", "", "fusion parameter file (.json or .yaml); defaults apply when empty")
		outputPath = flag.String("output", "fused.json", "output JSON file")
		sourcesCSV = flag.String("sources", "ssd,denet,faster-rcnn", "comma-separated detector identifiers")
		classesCSV = flag.String("classes", "", "comma-separated class labels; PASCAL VOC when empty")
		workers    = flag.Int("workers", runtime.NumCPU(), "fusion worker goroutines")
	)
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}

	params := fusion.DefaultParameters()
	if *paramsPath != "" {
		data, err := os.ReadFile(*paramsPath)
		if err != nil {
			log.Fatalf("read params: %v", err)
		}
		switch filepath.Ext(*paramsPath) {
		case ".yaml", ".yml":
			params, err = fusion.ParametersFromYAML(data)
		default:
			params, err = fusion.ParametersFromJSON(data)
		}
		if err != nil {
			log.Fatalf("parse params: %v", err)
		}
	}

	classes := detections.VOCClasses()
	if *classesCSV != "" {
		classes = detections.NewClassSet(strings.Split(*classesCSV, ",")...)
	}

	var sources []detections.SourceID
	for _, s := range strings.Split(*sourcesCSV, ",") {
		sources = append(sources, detections.SourceID(strings.TrimSpace(s)))
	}

	fuser, err := fusion.NewFuser(params, classes, sources)
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	var images []runner.Image
	if err := json.Unmarshal(data, &images); err != nil {
		log.Fatalf("parse input: %v", err)
	}

	results, metrics, err := runner.RunWithMetrics(context.Background(), fuser, images, *workers)
	if err != nil {
		log.Fatalf("fusion: %v", err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	if err := os.WriteFile(*outputPath, out, 0o644); err != nil {
		log.Fatalf("write output: %v", err)
	}

	log.Printf("fused %d images (%d detections in, %d out) in %s, %.1f images/s -> %s",
		metrics.ImageCount, metrics.InputCount, metrics.FusedCount,
		metrics.TotalDuration.Round(time.Millisecond), metrics.ImagesPerSecond, *outputPath)
}
