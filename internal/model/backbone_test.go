package model

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
)

func testParams() Params {
	return Params{
		ClassToIndex: map[string]int{"ulcer": 0, "erosion": 1},
		LR:           0.05,
		MaxEpochs:    5,
		FTMode:       FineTuneFull,
		GradClip:     0.5,
		Seed:         7,
	}
}

func syntheticBatch(n int, rng *rand.Rand) data.Batch {
	batch := data.Batch{}
	for i := 0; i < n; i++ {
		features := make([]float64, data.FeatureSize)
		label := i % 2
		for j := range features {
			base := 0.2
			if label == 1 {
				base = 0.8
			}
			features[j] = base + rng.Float64()*0.05
		}
		batch.Inputs = append(batch.Inputs, features)
		batch.Labels = append(batch.Labels, label)
	}
	return batch
}

func TestTrainBatchReducesLoss(t *testing.T) {
	b, err := newBackbone("test", 16, testParams())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	batch := syntheticBatch(32, rng)

	first := b.trainBatch(batch, 0.05)
	var last float64
	for i := 0; i < 30; i++ {
		last = b.trainBatch(batch, 0.05)
	}
	require.Less(t, last, first)
}

func TestFineTuneHeadFreezesBackbone(t *testing.T) {
	p := testParams()
	p.FTMode = FineTuneHead
	b, err := newBackbone("test", 16, p)
	require.NoError(t, err)

	projBefore := append([]float64(nil), b.proj...)
	headBefore := append([]float64(nil), b.head...)

	rng := rand.New(rand.NewSource(2))
	b.trainBatch(syntheticBatch(16, rng), 0.05)

	require.Equal(t, projBefore, b.proj)
	require.NotEqual(t, headBefore, b.head)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b, err := newBackbone("test", 16, testParams())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	b.trainBatch(syntheticBatch(16, rng), 0.05)

	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, b.Save(path))

	restored, err := newBackbone("test", 16, testParams())
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))
	require.Equal(t, b.proj, restored.proj)
	require.Equal(t, b.head, restored.head)
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	b, err := newBackbone("test", 16, testParams())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, b.Save(path))

	other, err := newBackbone("test", 32, testParams())
	require.NoError(t, err)
	require.Error(t, other.Load(path))
}

func TestLearningRateSchedules(t *testing.T) {
	p := testParams()
	p.Scheduler = "cosine"
	p.EtaMin = 0.001
	b, err := newBackbone("test", 8, p)
	require.NoError(t, err)

	require.InDelta(t, p.LR, b.LearningRate(0), 1e-9)
	require.InDelta(t, p.EtaMin, b.LearningRate(p.MaxEpochs-1), 1e-9)

	p.Scheduler = "lambda"
	p.LambdaFactor = 0.5
	lb, err := newBackbone("test", 8, p)
	require.NoError(t, err)
	require.InDelta(t, p.LR*0.25, lb.LearningRate(2), 1e-9)
}
