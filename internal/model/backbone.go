package model

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/metrics"
)

// backbone is a two-layer classifier over grid features: a projection layer
// ("backbone") with tanh activation, and a softmax head. Fine-tune modes map
// onto the two parameter groups.
type backbone struct {
	name       string
	numClasses int
	inputSize  int
	hiddenSize int

	proj     []float64 // hiddenSize x inputSize
	projBias []float64
	head     []float64 // numClasses x hiddenSize
	headBias []float64

	mode         FineTuneMode
	lr           float64
	weightDecay  float64
	etaMin       float64
	lambdaFactor float64
	gradClip     float64
	scheduler    string
	maxEpochs    int
}

func newBackbone(name string, hiddenSize int, p Params) (*backbone, error) {
	if len(p.ClassToIndex) == 0 {
		return nil, errors.New("model: class mapping is empty")
	}
	mode := p.FTMode
	if mode == "" {
		mode = FineTuneFull
	}

	b := &backbone{
		name:         name,
		numClasses:   len(p.ClassToIndex),
		inputSize:    data.FeatureSize,
		hiddenSize:   hiddenSize,
		mode:         mode,
		lr:           p.LR,
		weightDecay:  p.WeightDecay,
		etaMin:       p.EtaMin,
		lambdaFactor: p.LambdaFactor,
		gradClip:     p.GradClip,
		scheduler:    p.Scheduler,
		maxEpochs:    p.MaxEpochs,
	}

	rng := rand.New(rand.NewSource(p.Seed))
	b.proj = randomWeights(rng, b.hiddenSize*b.inputSize, b.inputSize)
	b.projBias = make([]float64, b.hiddenSize)
	b.head = randomWeights(rng, b.numClasses*b.hiddenSize, b.hiddenSize)
	b.headBias = make([]float64, b.numClasses)

	if p.CheckpointPath != "" {
		if err := b.Load(p.CheckpointPath); err != nil {
			return nil, fmt.Errorf("load pretrained checkpoint: %w", err)
		}
	}

	return b, nil
}

func randomWeights(rng *rand.Rand, n, fanIn int) []float64 {
	scale := math.Sqrt(1.0 / float64(fanIn))
	w := make([]float64, n)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * scale
	}
	return w
}

func (b *backbone) Name() string        { return b.name }
func (b *backbone) NumClasses() int     { return b.numClasses }
func (b *backbone) ParameterCount() int {
	return len(b.proj) + len(b.projBias) + len(b.head) + len(b.headBias)
}

// LearningRate returns the scheduled learning rate for an epoch (0-based).
func (b *backbone) LearningRate(epoch int) float64 {
	switch b.scheduler {
	case "cosine":
		if b.maxEpochs <= 1 {
			return b.lr
		}
		t := float64(epoch) / float64(b.maxEpochs-1)
		return b.etaMin + (b.lr-b.etaMin)*(1+math.Cos(math.Pi*t))/2
	case "lambda":
		return b.lr * math.Pow(b.lambdaFactor, float64(epoch))
	default:
		return b.lr
	}
}

// TrainEpoch consumes one pass over the loader and returns the mean batch loss.
func (b *backbone) TrainEpoch(ctx context.Context, epoch int, loader *data.Loader) (float64, error) {
	lr := b.LearningRate(epoch)
	batches, errs := loader.Stream(ctx)

	var window metrics.Window
	for batch := range batches {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		loss := b.trainBatch(batch, lr)
		window.Record(len(batch.Inputs), 0, 0, loss)
	}
	if err := <-errs; err != nil {
		return 0, err
	}

	snap := window.Snapshot()
	if snap.Samples == 0 {
		return 0, errors.New("training epoch saw no samples")
	}
	return snap.MeanLoss, nil
}

func (b *backbone) trainBatch(batch data.Batch, lr float64) float64 {
	totalLoss := 0.0
	for i, input := range batch.Inputs {
		if len(input) != b.inputSize {
			continue
		}
		label := batch.Labels[i]
		if label < 0 || label >= b.numClasses {
			continue
		}

		hidden, probs := b.forward(input)
		totalLoss += -math.Log(math.Max(probs[label], 1e-9))

		// dLoss/dLogits
		dLogits := make([]float64, b.numClasses)
		copy(dLogits, probs)
		dLogits[label] -= 1

		// head gradients and hidden backprop
		dHidden := make([]float64, b.hiddenSize)
		headGrads := make([]float64, len(b.head))
		for c := 0; c < b.numClasses; c++ {
			g := dLogits[c]
			wStart := c * b.hiddenSize
			for h := 0; h < b.hiddenSize; h++ {
				headGrads[wStart+h] = g * hidden[h]
				dHidden[h] += g * b.head[wStart+h]
			}
		}

		// tanh derivative
		projGrads := make([]float64, 0)
		updateProj := b.mode == FineTuneBackbone || b.mode == FineTuneFull
		if updateProj {
			projGrads = make([]float64, len(b.proj))
			for h := 0; h < b.hiddenSize; h++ {
				dPre := dHidden[h] * (1 - hidden[h]*hidden[h])
				wStart := h * b.inputSize
				for j := 0; j < b.inputSize; j++ {
					projGrads[wStart+j] = dPre * input[j]
				}
			}
		}

		clip := gradScale(b.gradClip, headGrads, projGrads)

		if b.mode == FineTuneHead || b.mode == FineTuneFull {
			for c := 0; c < b.numClasses; c++ {
				b.headBias[c] -= lr * dLogits[c] * clip
				wStart := c * b.hiddenSize
				for h := 0; h < b.hiddenSize; h++ {
					g := headGrads[wStart+h]*clip + b.weightDecay*b.head[wStart+h]
					b.head[wStart+h] -= lr * g
				}
			}
		}
		if updateProj {
			for h := 0; h < b.hiddenSize; h++ {
				dPre := dHidden[h] * (1 - hidden[h]*hidden[h])
				b.projBias[h] -= lr * dPre * clip
				wStart := h * b.inputSize
				for j := 0; j < b.inputSize; j++ {
					g := projGrads[wStart+j]*clip + b.weightDecay*b.proj[wStart+j]
					b.proj[wStart+j] -= lr * g
				}
			}
		}
	}

	if len(batch.Inputs) == 0 {
		return 0
	}
	return totalLoss / float64(len(batch.Inputs))
}

// gradScale returns the factor that caps the global gradient L2 norm.
func gradScale(clip float64, groups ...[]float64) float64 {
	if clip <= 0 {
		return 1
	}
	var sq float64
	for _, g := range groups {
		for _, v := range g {
			sq += v * v
		}
	}
	norm := math.Sqrt(sq)
	if norm <= clip {
		return 1
	}
	return clip / norm
}

func (b *backbone) forward(input []float64) (hidden, probs []float64) {
	hidden = make([]float64, b.hiddenSize)
	for h := 0; h < b.hiddenSize; h++ {
		sum := b.projBias[h]
		wStart := h * b.inputSize
		for j := 0; j < b.inputSize; j++ {
			sum += b.proj[wStart+j] * input[j]
		}
		hidden[h] = math.Tanh(sum)
	}

	logits := make([]float64, b.numClasses)
	for c := 0; c < b.numClasses; c++ {
		sum := b.headBias[c]
		wStart := c * b.hiddenSize
		for h := 0; h < b.hiddenSize; h++ {
			sum += b.head[wStart+h] * hidden[h]
		}
		logits[c] = sum
	}
	return hidden, softmax(logits)
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Evaluate runs a full pass and reports the monitored metric family under the
// given prefix ("val_" or "test_").
func (b *backbone) Evaluate(ctx context.Context, loader *data.Loader, prefix string) (Metrics, error) {
	batches, errs := loader.Stream(ctx)

	var labels, preds []int
	var scores [][]float64
	var totalLoss float64
	var n int

	for batch := range batches {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		for i, input := range batch.Inputs {
			if len(input) != b.inputSize {
				continue
			}
			label := batch.Labels[i]
			_, probs := b.forward(input)

			best := 0
			for c := 1; c < b.numClasses; c++ {
				if probs[c] > probs[best] {
					best = c
				}
			}

			labels = append(labels, label)
			preds = append(preds, best)
			scores = append(scores, probs)
			if label >= 0 && label < b.numClasses {
				totalLoss += -math.Log(math.Max(probs[label], 1e-9))
			}
			n++
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("evaluation saw no samples")
	}

	correct := 0
	for i := range labels {
		if labels[i] == preds[i] {
			correct++
		}
	}

	return Metrics{
		prefix + "loss":         totalLoss / float64(n),
		prefix + "acc":          float64(correct) / float64(n),
		prefix + "f1_weighted":  metrics.F1Weighted(labels, preds, b.numClasses),
		prefix + "AUC_macro":    metrics.AUCMacro(labels, scores, b.numClasses),
		prefix + "mAP_weighted": metrics.APWeighted(labels, scores, b.numClasses),
	}, nil
}

// snapshot is the gob-encoded checkpoint payload.
type snapshot struct {
	Name       string
	NumClasses int
	InputSize  int
	HiddenSize int
	Proj       []float64
	ProjBias   []float64
	Head       []float64
	HeadBias   []float64
}

// Save writes the parameter snapshot to path.
func (b *backbone) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer f.Close()

	snap := snapshot{
		Name:       b.name,
		NumClasses: b.numClasses,
		InputSize:  b.inputSize,
		HiddenSize: b.hiddenSize,
		Proj:       b.proj,
		ProjBias:   b.projBias,
		Head:       b.head,
		HeadBias:   b.headBias,
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return nil
}

// Load restores parameters from a snapshot. Shape mismatches are errors.
func (b *backbone) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, err)
	}

	if snap.NumClasses != b.numClasses || snap.InputSize != b.inputSize || snap.HiddenSize != b.hiddenSize {
		return fmt.Errorf("checkpoint %s shape (%d,%d,%d) does not match model (%d,%d,%d)",
			path, snap.NumClasses, snap.InputSize, snap.HiddenSize, b.numClasses, b.inputSize, b.hiddenSize)
	}

	b.proj = snap.Proj
	b.projBias = snap.ProjBias
	b.head = snap.Head
	b.headBias = snap.HeadBias
	return nil
}
