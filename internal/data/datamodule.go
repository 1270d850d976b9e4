package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Cap applied to every split when reduced-data mode is on.
const reducedDataCap = 256

// Options configure the data module.
type Options struct {
	ClassMapping    map[string]int
	TrainTransforms Pipeline
	ValTransforms   Pipeline

	TrainBatchSize int
	ValBatchSize   int

	DatasetPath    string // image root
	DatasetCSVPath string // split CSV directory

	FoldID     int
	NumWorkers int

	TrainFrac float64
	ValFrac   float64

	IncludeTestInTrain bool
	ReducedData        bool
	Seed               int64
}

// DataModule owns the fold splits and hands out loaders. Splits live in CSV
// files under DatasetCSVPath: fold_<k>_train.csv, fold_<k>_val.csv, test.csv.
// A missing file means the corresponding loader is absent (nil).
type DataModule struct {
	opts Options

	// ClassToIndex is the resolved label mapping, exposed for model heads.
	ClassToIndex map[string]int

	train []Sample
	val   []Sample
	test  []Sample

	ready bool
}

// NewDataModule builds an unprepared module; call Setup before requesting
// loaders.
func NewDataModule(opts Options) *DataModule {
	return &DataModule{opts: opts, ClassToIndex: opts.ClassMapping}
}

// Setup loads the split files. Idempotent.
func (m *DataModule) Setup() error {
	if m.ready {
		return nil
	}
	if len(m.opts.ClassMapping) == 0 {
		return errors.New("datamodule: class mapping is empty")
	}

	var err error
	m.train, err = m.readSplit(fmt.Sprintf("fold_%d_train.csv", m.opts.FoldID))
	if err != nil {
		return err
	}
	m.val, err = m.readSplit(fmt.Sprintf("fold_%d_val.csv", m.opts.FoldID))
	if err != nil {
		return err
	}
	m.test, err = m.readSplit("test.csv")
	if err != nil {
		return err
	}

	m.train = capSamples(m.train, m.opts.TrainFrac, m.opts.ReducedData)
	m.val = capSamples(m.val, m.opts.ValFrac, m.opts.ReducedData)
	if m.opts.ReducedData {
		m.test = capSamples(m.test, 1, true)
	}

	if m.opts.IncludeTestInTrain && m.train != nil && m.test != nil {
		m.train = append(m.train, m.test...)
	}

	m.ready = true
	return nil
}

// TrainDataloader returns the training loader, or nil when the split is absent.
func (m *DataModule) TrainDataloader() *Loader {
	return m.loader(m.train, m.opts.TrainBatchSize, m.opts.TrainTransforms, true)
}

// ValDataloader returns the validation loader, or nil when the split is absent.
func (m *DataModule) ValDataloader() *Loader {
	return m.loader(m.val, m.opts.ValBatchSize, m.opts.ValTransforms, false)
}

// TestDataloader returns the test loader, or nil when the split is absent.
func (m *DataModule) TestDataloader() *Loader {
	return m.loader(m.test, m.opts.ValBatchSize, m.opts.ValTransforms, false)
}

// NumClasses is the size of the class mapping.
func (m *DataModule) NumClasses() int { return len(m.ClassToIndex) }

func (m *DataModule) loader(samples []Sample, batchSize int, tfm Pipeline, shuffle bool) *Loader {
	if samples == nil {
		return nil
	}
	workers := m.opts.NumWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Loader{
		samples:   samples,
		root:      m.opts.DatasetPath,
		batchSize: batchSize,
		workers:   workers,
		transform: tfm,
		shuffle:   shuffle,
		seed:      m.opts.Seed,
	}
}

// readSplit parses one split CSV (columns: image_path,label; header optional).
// Returns nil with no error when the file does not exist.
func (m *DataModule) readSplit(name string) ([]Sample, error) {
	path := filepath.Join(m.opts.DatasetCSVPath, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open split %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	samples := []Sample{}
	line := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read split %s: %w", name, err)
		}
		line++
		if line == 1 && record[0] == "image_path" {
			continue
		}

		label, err := m.resolveLabel(record[1])
		if err != nil {
			return nil, fmt.Errorf("split %s line %d: %w", name, line, err)
		}
		samples = append(samples, Sample{Path: record[0], Label: label})
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("split %s has no rows", name)
	}
	return samples, nil
}

// resolveLabel maps a class name (or raw index) to the class index.
func (m *DataModule) resolveLabel(field string) (int, error) {
	if idx, ok := m.opts.ClassMapping[field]; ok {
		return idx, nil
	}
	idx, err := strconv.Atoi(field)
	if err != nil || idx < 0 || idx >= len(m.opts.ClassMapping) {
		return 0, fmt.Errorf("label %q not in class mapping", field)
	}
	return idx, nil
}

func capSamples(samples []Sample, frac float64, reduced bool) []Sample {
	if samples == nil {
		return nil
	}
	n := len(samples)
	if frac > 0 && frac < 1 {
		n = int(float64(n) * frac)
		if n == 0 {
			n = 1
		}
	}
	if reduced && n > reducedDataCap {
		n = reducedDataCap
	}
	return samples[:n]
}
