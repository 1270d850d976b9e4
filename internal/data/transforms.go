package data

import (
	"fmt"
	"image"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// Transform mutates an image before feature extraction. Probabilistic
// transforms draw from the supplied rng so epochs stay reproducible.
type Transform interface {
	Apply(img image.Image, rng *rand.Rand) image.Image
}

// Pipeline applies transforms in order.
type Pipeline []Transform

// Apply runs the whole pipeline.
func (p Pipeline) Apply(img image.Image, rng *rand.Rand) image.Image {
	for _, t := range p {
		img = t.Apply(img, rng)
	}
	return img
}

type opSpec struct {
	Op   string  `yaml:"op"`
	P    float64 `yaml:"p"`
	Size int     `yaml:"size"`
}

type transformSpec struct {
	Train []opSpec `yaml:"train"`
	Val   []opSpec `yaml:"val"`
}

// LoadTransforms parses the declarative transform spec and builds the train
// and val pipelines. The raw spec text is returned so callers can publish it
// for provenance.
func LoadTransforms(imgSize int, path string) (train, val Pipeline, raw string, err error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("read transform spec: %w", err)
	}

	var spec transformSpec
	if err := yaml.Unmarshal(text, &spec); err != nil {
		return nil, nil, "", fmt.Errorf("parse transform spec %s: %w", path, err)
	}

	train, err = buildPipeline(spec.Train, imgSize)
	if err != nil {
		return nil, nil, "", fmt.Errorf("train transforms: %w", err)
	}
	val, err = buildPipeline(spec.Val, imgSize)
	if err != nil {
		return nil, nil, "", fmt.Errorf("val transforms: %w", err)
	}

	return train, val, string(text), nil
}

func buildPipeline(ops []opSpec, imgSize int) (Pipeline, error) {
	p := make(Pipeline, 0, len(ops))
	for _, op := range ops {
		size := op.Size
		if size <= 0 {
			size = imgSize
		}
		prob := op.P
		if prob <= 0 {
			prob = 0.5
		}

		switch op.Op {
		case "resize":
			p = append(p, resizeOp{size: size})
		case "center_crop":
			p = append(p, centerCropOp{size: size})
		case "hflip":
			p = append(p, flipOp{p: prob, horizontal: true})
		case "vflip":
			p = append(p, flipOp{p: prob, horizontal: false})
		case "grayscale":
			p = append(p, grayscaleOp{})
		default:
			return nil, fmt.Errorf("unknown transform op %q", op.Op)
		}
	}
	return p, nil
}

type resizeOp struct {
	size int
}

// Apply scales with nearest-neighbor sampling. Quality is irrelevant for the
// grid features downstream; determinism is not.
func (o resizeOp) Apply(img image.Image, _ *rand.Rand) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == o.size && bounds.Dy() == o.size {
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, o.size, o.size))
	for y := 0; y < o.size; y++ {
		sy := bounds.Min.Y + y*bounds.Dy()/o.size
		for x := 0; x < o.size; x++ {
			sx := bounds.Min.X + x*bounds.Dx()/o.size
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

type centerCropOp struct {
	size int
}

func (o centerCropOp) Apply(img image.Image, _ *rand.Rand) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= o.size && bounds.Dy() <= o.size {
		return img
	}

	x0 := bounds.Min.X + (bounds.Dx()-o.size)/2
	y0 := bounds.Min.Y + (bounds.Dy()-o.size)/2
	out := image.NewRGBA(image.Rect(0, 0, o.size, o.size))
	for y := 0; y < o.size; y++ {
		for x := 0; x < o.size; x++ {
			out.Set(x, y, img.At(x0+x, y0+y))
		}
	}
	return out
}

type flipOp struct {
	p          float64
	horizontal bool
}

func (o flipOp) Apply(img image.Image, rng *rand.Rand) image.Image {
	if rng == nil || rng.Float64() >= o.p {
		return img
	}

	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			if o.horizontal {
				out.Set(x, y, img.At(bounds.Max.X-1-x, bounds.Min.Y+y))
			} else {
				out.Set(x, y, img.At(bounds.Min.X+x, bounds.Max.Y-1-y))
			}
		}
	}
	return out
}

type grayscaleOp struct{}

func (grayscaleOp) Apply(img image.Image, _ *rand.Rand) image.Image {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}
