package data

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
)

// Feature grid sampled from each decoded image. The models consume
// featureGrid*featureGrid intensity values per sample.
const featureGrid = 16

// FeatureSize is the length of a sample's feature vector.
const FeatureSize = featureGrid * featureGrid

// Sample is one dataset row: an image path relative to the dataset root and
// its class index.
type Sample struct {
	Path  string
	Label int
}

// Batch is a decoded minibatch.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Loader streams decoded batches for one split. A nil *Loader is the explicit
// "absent" marker the orchestrator branches on.
type Loader struct {
	samples   []Sample
	root      string
	batchSize int
	workers   int
	transform Pipeline
	shuffle   bool
	seed      int64
	epoch     int
}

// Len reports the number of samples in the split.
func (l *Loader) Len() int { return len(l.samples) }

// BatchSize reports the configured minibatch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// Stream launches the decode workers and returns a batch channel plus an
// error channel. Both close when the epoch is exhausted or ctx is done. Each
// call advances the shuffle epoch.
func (l *Loader) Stream(ctx context.Context) (<-chan Batch, <-chan error) {
	out := make(chan Batch, 2)
	errCh := make(chan error, 1)

	order := make([]int, len(l.samples))
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		rng := rand.New(rand.NewSource(l.seed + int64(l.epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	l.epoch++

	type decoded struct {
		features []float64
		label    int
	}

	jobs := make(chan int, l.workers)
	results := make(chan decoded, l.workers*2)

	var wg sync.WaitGroup
	for w := 0; w < l.workers; w++ {
		wg.Add(1)
		// per-worker rng keeps probabilistic transforms race-free
		rng := rand.New(rand.NewSource(l.seed + int64(l.epoch)*31 + int64(w)))
		go func(rng *rand.Rand) {
			defer wg.Done()
			for idx := range jobs {
				s := l.samples[idx]
				features, err := l.decode(s, rng)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				select {
				case results <- decoded{features: features, label: s.Label}:
				case <-ctx.Done():
					return
				}
			}
		}(rng)
	}

	go func() {
		defer close(jobs)
		for _, idx := range order {
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(out)
		defer close(errCh)

		batch := Batch{}
		flush := func() bool {
			if len(batch.Inputs) == 0 {
				return true
			}
			select {
			case out <- batch:
				batch = Batch{}
				return true
			case <-ctx.Done():
				return false
			}
		}

		for d := range results {
			batch.Inputs = append(batch.Inputs, d.features)
			batch.Labels = append(batch.Labels, d.label)
			if len(batch.Inputs) >= l.batchSize {
				if !flush() {
					return
				}
			}
		}
		flush()
	}()

	return out, errCh
}

// decode reads, transforms, and grid-samples one image into features.
func (l *Loader) decode(s Sample, rng *rand.Rand) ([]float64, error) {
	raw, err := os.ReadFile(filepath.Join(l.root, s.Path))
	if err != nil {
		return nil, fmt.Errorf("read sample %s: %w", s.Path, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode sample %s: %w", s.Path, err)
	}

	img = l.transform.Apply(img, rng)
	return extractFeatures(img)
}

// extractFeatures samples a featureGrid x featureGrid intensity grid.
func extractFeatures(img image.Image) ([]float64, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty image")
	}

	features := make([]float64, FeatureSize)
	stepX := float64(width) / featureGrid
	stepY := float64(height) / featureGrid
	for gy := 0; gy < featureGrid; gy++ {
		for gx := 0; gx < featureGrid; gx++ {
			px := bounds.Min.X + int(math.Min(float64(width-1), float64(gx)*stepX))
			py := bounds.Min.Y + int(math.Min(float64(height-1), float64(gy)*stepY))
			r, g, b, _ := img.At(px, py).RGBA()
			features[gy*featureGrid+gx] = (float64(r) + float64(g) + float64(b)) / (3 * 65535.0)
		}
	}
	return features, nil
}
