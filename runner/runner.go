// Package runner - parallel per-image execution of a fusion strategy.
//
// A fusion run over one image is a pure computation with no shared mutable
// state, so a dataset parallelizes trivially across worker goroutines. The
// runner preserves the input image order in its results regardless of
// which worker finished first.
package runner

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-fusion/detections"
)

// Image is one independent fusion problem: an identifier plus this image's
// detections keyed by source detector.
type Image struct {
	ID         string                                         `json:"id"         yaml:"id"`
	Detections map[detections.SourceID][]detections.Detection `json:"detections" yaml:"detections"`
}

// Result tags one image's fused output with its source image identifier.
type Result struct {
	ID    string             `json:"id"    yaml:"id"`
	Fused []detections.Fused `json:"fused" yaml:"fused"`
}

// Strategy is the per-image fusion contract. fusion.Fuser, baselines.NMS,
// and baselines.DBF all satisfy it.
type Strategy interface {
	FuseImage(perDetector map[detections.SourceID][]detections.Detection) ([]detections.Fused, error)
}

// Run fuses every image with the given strategy across a pool of worker
// goroutines.
//
// Cancellation is cooperative and per-image: a cancelled context stops
// further images from being scheduled, but an image already being fused
// runs to completion (each run is bounded by the handful of detections a
// few detectors produce). The first error aborts the run.
//
// Arguments:
//   - ctx: Checked between images only.
//   - strategy: The fusion strategy; must be safe for concurrent use.
//   - images: The dataset. Results come back in this order.
//   - workers: Pool size; values below 1 are treated as 1.
//
// Returns:
//   - []Result: One entry per input image, in input order.
//   - error: The first per-image error, or ctx.Err() on cancellation.
func Run(ctx context.Context, strategy Strategy, images []Image, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(images))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if failed() {
					continue
				}
				fused, err := strategy.FuseImage(images[i].Detections)
				if err != nil {
					fail(err)
					continue
				}
				results[i] = Result{ID: images[i].ID, Fused: fused}
			}
		}()
	}

	for i := range images {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		if failed() {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
