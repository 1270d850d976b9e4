package data

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writePNG(t *testing.T, path string, intensity uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: intensity})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// testDataset lays out a dataset root with images and a split CSV directory.
func testDataset(t *testing.T, trainRows, valRows, testRows int) (root, csvDir string) {
	t.Helper()
	root = t.TempDir()
	csvDir = filepath.Join(root, "splits")
	require.NoError(t, os.MkdirAll(csvDir, 0o755))

	writeFile(t, filepath.Join(csvDir, "class_mapping.json"), `{"ulcer": 0, "erosion": 1}`)

	writeSplit := func(name string, rows int) {
		if rows <= 0 {
			return
		}
		content := "image_path,label\n"
		for i := 0; i < rows; i++ {
			img := fmt.Sprintf("%s_%d.png", name, i)
			writePNG(t, filepath.Join(root, img), uint8(40+i*13%200))
			label := "ulcer"
			if i%2 == 1 {
				label = "erosion"
			}
			content += fmt.Sprintf("%s,%s\n", img, label)
		}
		writeFile(t, filepath.Join(csvDir, name+".csv"), content)
	}

	writeSplit("fold_1_train", trainRows)
	writeSplit("fold_1_val", valRows)
	writeSplit("test", testRows)
	return root, csvDir
}

func testOptions(root, csvDir string, mapping map[string]int) Options {
	return Options{
		ClassMapping:   mapping,
		TrainBatchSize: 4,
		ValBatchSize:   4,
		DatasetPath:    root,
		DatasetCSVPath: csvDir,
		FoldID:         1,
		NumWorkers:     2,
		TrainFrac:      1,
		ValFrac:        1,
		Seed:           7,
	}
}

func TestLoadClassMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "class_mapping.json")
	writeFile(t, path, `{"ulcer": 0, "erosion": 1, "polyp": 2}`)

	mapping, err := LoadClassMapping(path)
	require.NoError(t, err)
	require.Len(t, mapping, 3)
	require.Equal(t, 2, mapping["polyp"])
}

func TestLoadClassMappingRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "class_mapping.json")
	writeFile(t, path, `{"a": 0, "b": 0}`)

	_, err := LoadClassMapping(path)
	require.Error(t, err)
}

func TestLoadTransformsReturnsRawText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transforms.yaml")
	spec := "train:\n  - op: resize\n  - op: hflip\n    p: 0.5\nval:\n  - op: resize\n"
	writeFile(t, path, spec)

	train, val, raw, err := LoadTransforms(64, path)
	require.NoError(t, err)
	require.Len(t, train, 2)
	require.Len(t, val, 1)
	require.Equal(t, spec, raw)
}

func TestLoadTransformsRejectsUnknownOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transforms.yaml")
	writeFile(t, path, "train:\n  - op: mixup\n")

	_, _, _, err := LoadTransforms(64, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mixup")
}

func TestResizeProducesRequestedSize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 60))
	out := resizeOp{size: 32}.Apply(img, nil)
	require.Equal(t, 32, out.Bounds().Dx())
	require.Equal(t, 32, out.Bounds().Dy())
}

func TestDataModuleAbsentSplits(t *testing.T) {
	root, csvDir := testDataset(t, 6, 0, 0)
	mapping, err := LoadClassMapping(filepath.Join(csvDir, "class_mapping.json"))
	require.NoError(t, err)

	dm := NewDataModule(testOptions(root, csvDir, mapping))
	require.NoError(t, dm.Setup())

	require.NotNil(t, dm.TrainDataloader())
	require.Nil(t, dm.ValDataloader())
	require.Nil(t, dm.TestDataloader())
}

func TestDataModuleIncludeTestInTrain(t *testing.T) {
	root, csvDir := testDataset(t, 4, 2, 3)
	mapping, err := LoadClassMapping(filepath.Join(csvDir, "class_mapping.json"))
	require.NoError(t, err)

	opts := testOptions(root, csvDir, mapping)
	opts.IncludeTestInTrain = true
	dm := NewDataModule(opts)
	require.NoError(t, dm.Setup())

	require.Equal(t, 7, dm.TrainDataloader().Len())
	require.Equal(t, 3, dm.TestDataloader().Len())
}

func TestDataModuleFracCaps(t *testing.T) {
	root, csvDir := testDataset(t, 10, 0, 0)
	mapping, err := LoadClassMapping(filepath.Join(csvDir, "class_mapping.json"))
	require.NoError(t, err)

	opts := testOptions(root, csvDir, mapping)
	opts.TrainFrac = 0.5
	dm := NewDataModule(opts)
	require.NoError(t, dm.Setup())

	require.Equal(t, 5, dm.TrainDataloader().Len())
}

func TestLoaderStreamsAllSamples(t *testing.T) {
	root, csvDir := testDataset(t, 10, 0, 0)
	mapping, err := LoadClassMapping(filepath.Join(csvDir, "class_mapping.json"))
	require.NoError(t, err)

	dm := NewDataModule(testOptions(root, csvDir, mapping))
	require.NoError(t, dm.Setup())

	loader := dm.TrainDataloader()
	batches, errs := loader.Stream(context.Background())

	seen := 0
	for batch := range batches {
		require.Equal(t, len(batch.Inputs), len(batch.Labels))
		for _, input := range batch.Inputs {
			require.Len(t, input, FeatureSize)
			for _, v := range input {
				require.GreaterOrEqual(t, v, 0.0)
				require.LessOrEqual(t, v, 1.0)
			}
		}
		seen += len(batch.Inputs)
	}
	require.NoError(t, <-errs)
	require.Equal(t, 10, seen)
}

func TestLoaderShuffleIsSeededPerEpoch(t *testing.T) {
	samples := make([]Sample, 8)
	for i := range samples {
		samples[i] = Sample{Path: fmt.Sprintf("img_%d.png", i), Label: i % 2}
	}

	a := &Loader{samples: samples, shuffle: true, seed: 7}
	b := &Loader{samples: samples, shuffle: true, seed: 7}

	orderOf := func(l *Loader) []int {
		order := make([]int, len(l.samples))
		for i := range order {
			order[i] = i
		}
		rng := rand.New(rand.NewSource(l.seed + int64(l.epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		return order
	}

	require.Equal(t, orderOf(a), orderOf(b))
}
