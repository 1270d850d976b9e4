// Package run owns the training-run lifecycle: a strictly linear pipeline
// from config to tracked artifact. There is no retry or recovery here; every
// failure propagates to the caller and terminates the process.
package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/artifact"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/config"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/data"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/logging"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/model"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/observability"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/sysinfo"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/tracker"
	"github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/trainer"
)

const (
	defaultBatchSize  = 64
	precisionMode     = "16-mixed"
	gradClipThreshold = 0.5
)

// Orchestrator drives one training run end to end.
type Orchestrator struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New builds an orchestrator over a resolved config.
func New(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{cfg: cfg, logger: logger, metrics: metrics}
}

// Execute runs the pipeline: session, checkpoint policy, transforms, batch
// sizes, data, model, engine, fit, test, artifact.
func (o *Orchestrator) Execute(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			o.metrics.RecordRun("failed")
		} else {
			o.metrics.RecordRun("completed")
		}
	}()

	o.logger.Info("seeding random sources", zap.Int64("seed", o.cfg.Seed))

	session, err := tracker.Init(ctx, tracker.Options{
		Entity:  o.cfg.Entity,
		Project: o.cfg.Project,
		Config:  o.cfg.Snapshot(),
		BaseURL: o.cfg.TrackerURL,
		Dir:     o.cfg.TrackerDir,
		Logger:  o.logger,
	})
	if err != nil {
		return err
	}

	// sweep-assigned values replace the snapshot wholesale, never in place
	cfg, err := o.cfg.Merged(session.AssignedConfig())
	if err != nil {
		return err
	}

	logger := logging.ForRun(o.logger, session.RunName(), session.SweepID())

	identity := artifact.RunIdentity{
		RunName:   session.RunName(),
		SweepID:   session.SweepID(),
		Timestamp: time.Now().Format(artifact.TimestampLayout),
	}
	policy, err := artifact.Derive(identity, cfg.CheckpointDir, cfg.Metric)
	if err != nil {
		return err
	}

	trainTfm, valTfm, rawSpec, err := data.LoadTransforms(cfg.ImgSize, cfg.TransformPath)
	if err != nil {
		return err
	}
	logger.Info("using provided image size", zap.Int("img_size", cfg.ImgSize))
	if err := session.Log(map[string]any{"transforms": rawSpec}); err != nil {
		return err
	}

	trainBS, valBS := batchSizes(cfg)
	reportHardware(logger)
	logger.Info("batch sizes resolved", zap.Int("train_bs", trainBS), zap.Int("val_bs", valBS))
	if err := session.UpdateConfig(map[string]any{"train_bs": trainBS, "val_bs": valBS}); err != nil {
		return err
	}

	dm, err := o.buildDataModule(cfg, session, trainTfm, valTfm, trainBS, valBS)
	if err != nil {
		return err
	}

	mdl, err := buildModel(cfg, dm.ClassToIndex)
	if err != nil {
		return err
	}

	engine, err := o.buildEngine(cfg, policy, session, logger)
	if err != nil {
		return err
	}

	if err := o.train(ctx, engine, mdl, dm, cfg.TrainLoaderOnly); err != nil {
		return err
	}

	if test := dm.TestDataloader(); test == nil {
		logger.Info("no test dataloader available, skipping testing")
	} else {
		testMetrics, err := engine.Test(ctx, mdl, test, "best")
		if err != nil {
			return err
		}
		logger.Info("test finished", zap.Any("metrics", testMetrics))
	}

	if best := engine.BestCheckpointPath(); best != "" {
		err := session.LogArtifact(tracker.Artifact{
			Name: artifactName(cfg),
			Type: "model",
			Path: best,
		})
		if err != nil {
			return err
		}
	}

	return session.Finish()
}

// train picks the fit arguments from loader availability, mirroring the
// train-loader-only contract.
func (o *Orchestrator) train(ctx context.Context, engine *trainer.Engine, mdl model.Model, dm *data.DataModule, trainLoaderOnly bool) error {
	train, val, err := fitPlan(dm.TrainDataloader(), dm.ValDataloader(), trainLoaderOnly)
	if err != nil {
		return err
	}
	return engine.Fit(ctx, mdl, train, val)
}

// fitPlan validates loader availability. The validation-loader check comes
// first so a fully absent dataset reports the actionable error.
func fitPlan(train, val *data.Loader, trainLoaderOnly bool) (*data.Loader, *data.Loader, error) {
	if !trainLoaderOnly && val == nil {
		return nil, nil, errors.New("validation loader is absent and train_loader_only is not set; provide a validation split or enable train_loader_only")
	}
	if train == nil {
		return nil, nil, errors.New("training loader is absent")
	}
	if trainLoaderOnly {
		return train, nil, nil
	}
	return train, val, nil
}

// batchSizes applies the 64/64 default unless explicit sizes were configured.
func batchSizes(cfg *config.Config) (trainBS, valBS int) {
	trainBS = defaultBatchSize
	valBS = trainBS
	if cfg.TrainBS > 0 {
		trainBS = cfg.TrainBS
	}
	if cfg.ValBS > 0 {
		valBS = cfg.ValBS
	}
	return trainBS, valBS
}

// reportHardware logs detected compute capacity. Informational only: sizing
// never depends on it.
func reportHardware(logger *zap.Logger) {
	accel := sysinfo.Detect()
	if accel.Kind == sysinfo.AcceleratorCPU {
		logger.Info("no gpu accelerator available", zap.Int("cpus", accel.Devices))
	} else {
		logger.Info("accelerator detected", zap.String("kind", accel.Kind), zap.Int("devices", accel.Devices))
	}
	if memGB, err := sysinfo.HostMemoryGB(); err == nil {
		logger.Info("host memory", zap.Float64("total_gb", memGB))
	}
}

func (o *Orchestrator) buildDataModule(cfg *config.Config, session tracker.Session, trainTfm, valTfm data.Pipeline, trainBS, valBS int) (*data.DataModule, error) {
	mappingPath := filepath.Join(cfg.DatasetCSVPath, cfg.ClassMappingFilename)
	classMapping, err := data.LoadClassMapping(mappingPath)
	if err != nil {
		return nil, err
	}

	datasetPath := cfg.DatasetPath
	if cfg.DatasetArtifact != "" {
		resolved, err := session.UseArtifact(cfg.DatasetArtifact)
		if err != nil {
			return nil, fmt.Errorf("resolve dataset artifact: %w", err)
		}
		datasetPath = resolved
	}

	dm := data.NewDataModule(data.Options{
		ClassMapping:       classMapping,
		TrainTransforms:    trainTfm,
		ValTransforms:      valTfm,
		TrainBatchSize:     trainBS,
		ValBatchSize:       valBS,
		DatasetPath:        datasetPath,
		DatasetCSVPath:     cfg.DatasetCSVPath,
		FoldID:             cfg.FoldID,
		NumWorkers:         cfg.NumWorkers,
		TrainFrac:          cfg.TrainFrac,
		ValFrac:            cfg.ValFrac,
		IncludeTestInTrain: cfg.IncludeTestInTrain,
		ReducedData:        cfg.ReducedDataMode,
		Seed:               cfg.Seed,
	})
	if err := dm.Setup(); err != nil {
		return nil, err
	}
	return dm, nil
}

func buildModel(cfg *config.Config, classToIndex map[string]int) (model.Model, error) {
	ctor, err := model.Select(cfg.ModelType, cfg.ModelArch)
	if err != nil {
		return nil, err
	}

	ftMode, err := model.ParseFineTuneMode(cfg.FTMode)
	if err != nil {
		return nil, err
	}

	// pretrained weights load only when both halves of the path are set
	checkpointPath := ""
	if cfg.CheckpointFilename != "" && cfg.PretrainedCheckpointDir != "" {
		checkpointPath = filepath.Join(cfg.PretrainedCheckpointDir, cfg.CheckpointFilename)
	}

	return ctor(model.Params{
		Arch:           cfg.ModelArch,
		ClassToIndex:   classToIndex,
		CheckpointPath: checkpointPath,
		FTMode:         ftMode,
		Optimizer:      cfg.Optimizer,
		Scheduler:      cfg.Scheduler,
		LR:             cfg.LR,
		WeightDecay:    cfg.WeightDecay,
		EtaMin:         cfg.EtaMin,
		LambdaFactor:   cfg.LambdaFactor,
		GradClip:       gradClipThreshold,
		MaxEpochs:      cfg.MaxEpochs,
		Seed:           cfg.Seed,
	})
}

func (o *Orchestrator) buildEngine(cfg *config.Config, policy artifact.CheckpointPolicy, session tracker.Session, logger *zap.Logger) (*trainer.Engine, error) {
	accel := sysinfo.Detect()

	checkpointCB := &trainer.CheckpointCallback{Policy: policy, Logger: logger, Metrics: o.metrics}
	callbacks := []trainer.Callback{
		checkpointCB,
		&trainer.SummaryCallback{Logger: logger},
		&trainer.LRMonitor{Session: session},
	}

	return trainer.New(trainer.Options{
		Accelerator: accel.Kind,
		Devices:     cfg.NumDevices,
		NumNodes:    cfg.NumNodes,
		MaxEpochs:   cfg.MaxEpochs,
		Precision:   precisionMode,
		GradClip:    gradClipThreshold,
		Logger:      logger,
		Session:     session,
		Metrics:     o.metrics,
		Callbacks:   callbacks,
	})
}

// artifactName derives the registered artifact name from the model identity.
func artifactName(cfg *config.Config) string {
	name := cfg.ModelArch
	if name == "" {
		name = cfg.ModelType
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
